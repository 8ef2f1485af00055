// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Source provides the samples fed to Pipeline.Run.
type Source interface {
	// Next returns the next n samples and their names.
	// It returns io.EOF when fewer than n samples are left.
	Next(n int) (samples []image.Image, names []string, err error)

	// Reset restarts the source from the beginning.
	Reset() error
}

// ImageExtensions lists the file extensions FileSource reads.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff"}

// FileSource reads the images of a directory, in lexicographic order of their file names.
type FileSource struct {
	dir   string
	files []string
	next  int
}

var _ Source = (*FileSource)(nil)

// NewFileSource lists the image files in dir (not recursively).
func NewFileSource(dir string) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list images in %q", dir)
	}
	s := &FileSource{dir: dir}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			s.files = append(s.files, entry.Name())
		}
	}
	slices.Sort(s.files)
	if len(s.files) == 0 {
		return nil, errors.Errorf("no images (%v) found in %q", ImageExtensions, dir)
	}
	klog.V(1).Infof("FileSource(%q): %d images", dir, len(s.files))
	return s, nil
}

// Len returns the number of images in the source.
func (s *FileSource) Len() int { return len(s.files) }

// Next implements Source. Images are decoded with their EXIF orientation applied.
// The last images, if fewer than n, are never returned.
func (s *FileSource) Next(n int) ([]image.Image, []string, error) {
	if n <= 0 {
		return nil, nil, errors.Errorf("FileSource.Next(%d): n must be > 0", n)
	}
	if s.next+n > len(s.files) {
		if remaining := len(s.files) - s.next; remaining > 0 {
			klog.V(1).Infof("FileSource(%q): dropping the last %d images, less than a batch of %d", s.dir, remaining, n)
		}
		s.next = len(s.files)
		return nil, nil, io.EOF
	}
	names := s.files[s.next : s.next+n]
	samples := make([]image.Image, n)
	for ii, name := range names {
		img, err := imaging.Open(filepath.Join(s.dir, name), imaging.AutoOrientation(true))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "FileSource(%q): failed to decode %q", s.dir, name)
		}
		samples[ii] = img
	}
	s.next += n
	return samples, slices.Clone(names), nil
}

// Reset implements Source.
func (s *FileSource) Reset() error {
	s.next = 0
	return nil
}
