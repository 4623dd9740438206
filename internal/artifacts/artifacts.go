// Package artifacts keeps the input files of import runs so every ImportLog
// can point at what was imported.
package artifacts

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"cafe_inventory/internal/config"

	"github.com/google/uuid"
)

// Store saves an input file and returns a reference to it.
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// New returns the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	switch cfg.Driver {
	case "local":
		return NewLocalStore(cfg.Dir), nil
	case "s3":
		return NewS3Store(ctx, cfg)
	case "none", "":
		return Discard{}, nil
	}
	return nil, fmt.Errorf("unknown artifacts driver %q", cfg.Driver)
}

// Discard drops every file.
type Discard struct{}

func (Discard) Save(context.Context, string, []byte) (string, error) { return "", nil }

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectKey is "<yyyy>/<mm>/<dd>/<uuid>-<sanitized name>".
func objectKey(now time.Time, name string) string {
	base := unsafeChars.ReplaceAllString(path.Base(strings.ReplaceAll(name, `\`, "/")), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	return path.Join(now.UTC().Format("2006/01/02"), uuid.NewString()+"-"+base)
}
