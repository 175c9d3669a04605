// Package clipboard wraps the system clipboard as plain text.
package clipboard

import "github.com/atotto/clipboard"

// System is the real system clipboard. It satisfies the injection engine's
// clipboard interface.
type System struct{}

func (System) ReadText() (string, error) {
	return clipboard.ReadAll()
}

func (System) WriteText(text string) error {
	return clipboard.WriteAll(text)
}
