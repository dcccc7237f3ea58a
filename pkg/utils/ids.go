package utils

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewJobID returns ids shaped like sched_1730000000000_ab12cd.
func NewJobID(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(idAlphabet, 6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("sched_%d_%s", now.UnixMilli(), suffix), nil
}

// NewFileName returns a random file name with the given extension.
func NewFileName(ext string) (string, error) {
	id, err := gonanoid.Generate(idAlphabet, 16)
	if err != nil {
		return "", err
	}
	return id + "." + ext, nil
}
