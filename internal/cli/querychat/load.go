package querychat

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"

	"github.com/duckmesh/querychat/internal/app"
	"github.com/duckmesh/querychat/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

func newLoadCmd(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load DATASET TABLE FILE...",
		Short: "Upload parquet files as a table of the duckdb warehouse",
		Long: `Upload local parquet files into the object store layout read by the duckdb
backend (<dataset>/<table>/<file>.parquet). Files are checked to be readable
parquet before anything is uploaded. With --replace, table files that were not
part of this upload are deleted once every upload succeeded.`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.LoadConfig("querychat")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := app.OpenObjectStore(cmd.Context(), cfg.ObjectStore)
			if err != nil {
				return err
			}
			infos, err := UploadTableFiles(cmd.Context(), store, args[0], args[1], args[2:])
			for _, info := range infos {
				_, _ = fmt.Fprintf(opts.Stdout, "uploaded %s (%d bytes)\n", info.Key, info.Size)
			}
			if err != nil {
				return err
			}
			if replace, _ := cmd.Flags().GetBool("replace"); replace {
				removed, err := PruneTableFiles(cmd.Context(), store, args[0], args[1], infos)
				for _, key := range removed {
					_, _ = fmt.Fprintf(opts.Stdout, "removed %s\n", key)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().Bool("replace", false, "delete table files not included in this upload")
	return cmd
}

// UploadTableFiles validates every file before uploading any of them.
func UploadTableFiles(ctx context.Context, store storage.ObjectStore, dataset, table string, paths []string) ([]storage.ObjectInfo, error) {
	type pending struct {
		key  string
		data []byte
	}
	files := make([]pending, 0, len(paths))
	for _, path := range paths {
		key, err := storage.BuildTableFilePath(dataset, table, filepath.Base(path))
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if _, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data))); err != nil {
			return nil, fmt.Errorf("%s is not a readable parquet file: %w", path, err)
		}
		files = append(files, pending{key: key, data: data})
	}

	infos := make([]storage.ObjectInfo, 0, len(files))
	for _, file := range files {
		info, err := store.Put(ctx, file.key, bytes.NewReader(file.data), int64(len(file.data)), storage.PutOptions{ContentType: parquetContentType})
		if err != nil {
			return infos, fmt.Errorf("upload %s: %w", file.key, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PruneTableFiles deletes the files of dataset.table whose keys are not in
// keep and returns the removed keys.
func PruneTableFiles(ctx context.Context, store storage.ObjectStore, dataset, table string, keep []storage.ObjectInfo) ([]string, error) {
	prefix, err := storage.TablePrefix(dataset, table)
	if err != nil {
		return nil, err
	}
	existing, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	kept := make(map[string]struct{}, len(keep))
	for _, info := range keep {
		kept[info.Key] = struct{}{}
	}

	var removed []string
	for _, object := range existing {
		if _, ok := kept[object.Key]; ok {
			continue
		}
		if err := store.Delete(ctx, object.Key); err != nil {
			return removed, fmt.Errorf("remove %s: %w", object.Key, err)
		}
		removed = append(removed, object.Key)
	}
	return removed, nil
}
