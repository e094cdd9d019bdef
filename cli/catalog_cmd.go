package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/opal-lang/substrate/catalog"
	"github.com/opal-lang/substrate/interp"
	"github.com/opal-lang/substrate/store"
	"github.com/opal-lang/substrate/token"
)

func newCatalogCommand(rs *rootState) *cobra.Command {
	cmd := &cobra.Command{Use: "catalog", Short: "Import YAML catalog documents"}
	cmd.AddCommand(newCatalogImportCommand(rs))
	return cmd
}

func newCatalogImportCommand(rs *rootState) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Compile a catalog document's entries into the store and run its snapshot initializers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := importCatalogFile(rs, path); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			return watchCatalogFile(rs, path)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "re-import on every save, until interrupted")
	return cmd
}

func importCatalogFile(rs *rootState, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	st, err := rs.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := catalog.Import(st, data)
	if err != nil {
		return err
	}
	rs.logger.Info("catalog imported", "namespace", res.Namespace, "init_words", len(res.InitWords))

	if len(res.InitWords) > 0 {
		if err := runInitWords(st, res); err != nil {
			return err
		}
	}
	fmt.Printf("imported namespace %q (%d snapshot initializers run)\n", res.Namespace, len(res.InitWords))
	return nil
}

// runInitWords executes each snapshot-initializer word the importer
// synthesized (spec.md §4.6's snapshot handling is importer-side only; the
// actual global-store write happens here, once, after a successful import -
// see DESIGN.md's note on the importer's builder+store-only contract).
func runInitWords(st *store.Store, res *catalog.Result) error {
	reg, err := interp.NewBuiltinRegistry(st)
	if err != nil {
		return err
	}
	globals := token.NewGlobalStore()
	in := interp.New(st, globals, reg)
	for _, w := range res.InitWords {
		if _, err := in.Run(w, nil, res.Namespace); err != nil {
			return err
		}
	}
	return nil
}

// watchCatalogFile re-imports path whenever it changes on disk, until the
// watcher's channel is closed or an unrecoverable error occurs. Grounded on
// fsnotify's documented single-file watch idiom: watch the containing
// directory (inotify on Linux does not reliably fire rename-based saves on a
// bare file watch) and filter events down to the one path of interest.
func watchCatalogFile(rs *rootState, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	rs.logger.Info("watching catalog file for changes", "path", abs)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := importCatalogFile(rs, path); err != nil {
				rs.logger.Error("catalog re-import failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			rs.logger.Error("watcher error", "error", err)
		}
	}
}
