// Package storage defines the image directory abstraction.
package storage

// Provider is the interface for image directory operations. Names are bare
// file names relative to the image directory.
type Provider interface {
	// List returns the sorted names of every image matching the configured patterns.
	List() ([]string, error)
	// Read returns the raw bytes of the named image.
	Read(name string) ([]byte, error)
	// Write atomically writes content under name.
	Write(name string, content []byte) error
	// Exists reports whether the named image is present.
	Exists(name string) (bool, error)
	// Path returns the absolute on-disk path of the named image.
	Path(name string) (string, error)
	// Matches reports whether name is an accepted image name.
	Matches(name string) bool
	// Root returns the absolute image directory.
	Root() string
}
