// Package source decodes the HDF5 containers of the TEC, madrigal and
// auroral boundary archives into in-memory records.
package source

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/hdf5"
)

var (
	// ErrMalformed reports a container that is missing a dataset or whose
	// datasets have an unexpected type or shape. It aborts the request.
	ErrMalformed = errors.New("malformed source file")

	// ErrNonMonotonic reports a time axis that is not strictly increasing.
	ErrNonMonotonic = errors.New("time axis not strictly increasing")
)

// Container gives access to the named datasets of one file. Paths use "/" to
// address datasets inside nested groups.
type Container interface {
	Values(path string) (any, error)
	Close() error
}

// OpenFunc opens a container by file name.
type OpenFunc func(path string) (Container, error)

type hdf5Container struct {
	root api.Group
	size int64
}

// OpenHDF5 opens an HDF5 file for reading.
func OpenHDF5(path string) (Container, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	root, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return &hdf5Container{root: root, size: info.Size()}, nil
}

func (c *hdf5Container) Values(path string) (any, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	g := c.root
	for _, name := range parts[:len(parts)-1] {
		sub, err := g.GetGroup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: group %q: %v", ErrMalformed, name, err)
		}
		// Subgroups hold a reference on the file.
		defer sub.Close()
		g = sub
	}
	vg, err := g.GetVarGetter(parts[len(parts)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %q: %v", ErrMalformed, path, err)
	}
	v, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("reading dataset %q: %w", path, err)
	}
	return v, nil
}

// Size returns the file size in bytes.
func (c *hdf5Container) Size() int64 {
	return c.size
}

func (c *hdf5Container) Close() error {
	c.root.Close()
	return nil
}

// Memory is a Container backed by a map of dataset paths to values, the same
// shapes the HDF5 reader returns.
type Memory map[string]any

func (m Memory) Values(path string) (any, error) {
	v, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %q not found", ErrMalformed, path)
	}
	return v, nil
}

func (m Memory) Close() error {
	return nil
}
