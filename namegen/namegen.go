// Package namegen generates human-friendly display names for launched
// instances.
package namegen

import (
	vendor "github.com/anandvarma/namegen"
)

var gen = vendor.New()

// Instance returns a display name for a launched instance.
func Instance() string {
	return "harrier-" + gen.Get()
}
