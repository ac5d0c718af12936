package duckdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/duckmesh/querychat/internal/storage"
)

// download copies one object to localPath. A partial file is left behind on
// error; callers remove the whole work directory.
func download(ctx context.Context, store storage.ObjectStore, key, localPath string) (err error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { err = errors.Join(err, body.Close()) }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %q: %w", localPath, err)
	}
	defer func() { err = errors.Join(err, file.Close()) }()

	if _, err := io.Copy(file, body); err != nil {
		return fmt.Errorf("copy object %q to %q: %w", key, localPath, err)
	}
	return nil
}
