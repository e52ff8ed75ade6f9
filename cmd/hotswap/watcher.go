package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/hotswap/manifest"
	"github.com/chazu/hotswap/reload"
)

// ImageExt is the file extension of binary type images.
const ImageExt = ".hsti"

// fileState remembers what the watcher last published for one image file.
type fileState struct {
	modTime  time.Time
	size     int64
	digest   uint64
	typeName string
}

// scanStats summarizes one pass over the watched directories.
type scanStats struct {
	Added     int
	Reloaded  int
	Unchanged int
	Failed    int
}

// watcher polls directories of images. Each directory gets its own
// registry chained below a root registry; a directory that disappears is
// reported dead to the sweeper.
type watcher struct {
	ctx      *reload.Context
	root     *reload.TypeRegistry
	dirs     []string
	regs     map[string]*reload.TypeRegistry
	files    map[string]*fileState
	regOpts  []reload.RegistryOption
	loadOpts []reload.LoadOption
}

func (w *watcher) log() commonlog.Logger { return commonlog.GetLogger("hotswap.watch") }

func newWatcher(ctx *reload.Context, m *manifest.Manifest) (*watcher, error) {
	regOpts, err := m.RegistryOptions()
	if err != nil {
		return nil, err
	}
	regOpts = append(regOpts,
		reload.WithLinker(stubLinker),
		reload.WithListener(reload.ReloadListenerFunc(logReload)),
	)

	root, err := ctx.NewRegistry(m.Watch.Registry, nil, regOpts...)
	if err != nil {
		return nil, err
	}
	return &watcher{
		ctx:      ctx,
		root:     root,
		dirs:     m.WatchDirPaths(),
		regs:     make(map[string]*reload.TypeRegistry),
		files:    make(map[string]*fileState),
		regOpts:  regOpts,
		loadOpts: m.LoadOptions(),
	}, nil
}

func logReload(ev reload.ReloadEvent) {
	log := commonlog.GetLogger("hotswap.watch")
	if ev.Delta.From < 0 {
		log.Debugf("%s: loaded %s", ev.Registry.Name(), ev.Type.Name())
		return
	}
	log.Infof("%s: %s", ev.Registry.Name(), ev.Delta.Summary())
}

// registryFor returns the open registry of dir, creating it on first use
// or after the sweeper tore the previous one down.
func (w *watcher) registryFor(dir string) (*reload.TypeRegistry, error) {
	if r, ok := w.regs[dir]; ok && !r.Closed() {
		return r, nil
	}
	for path := range w.files {
		if filepath.Dir(path) == dir {
			delete(w.files, path)
		}
	}
	opts := append(w.regOpts[:len(w.regOpts):len(w.regOpts)], reload.WithLivenessProbe(func() bool {
		info, err := os.Stat(dir)
		return err == nil && info.IsDir()
	}))
	r, err := w.ctx.NewRegistry(w.root.Name()+":"+filepath.Base(dir), w.root, opts...)
	if err != nil {
		return nil, err
	}
	w.regs[dir] = r
	return r, nil
}

// scan makes one pass over every watched directory.
func (w *watcher) scan() scanStats {
	var stats scanStats
	for _, dir := range w.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				w.log().Warningf("cannot read %s: %v", dir, err)
			}
			continue
		}
		reg, err := w.registryFor(dir)
		if err != nil {
			w.log().Warningf("no registry for %s: %v", dir, err)
			continue
		}

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ImageExt) {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		w.forgetRemoved(dir, names)
		for _, name := range names {
			w.scanFile(reg, filepath.Join(dir, name), &stats)
		}
	}
	return stats
}

// forgetRemoved drops the state of images in dir that are no longer
// listed. Their types stay published; a file that reappears is treated
// as new.
func (w *watcher) forgetRemoved(dir string, names []string) {
	for path := range w.files {
		if filepath.Dir(path) != dir {
			continue
		}
		if _, found := slices.BinarySearch(names, filepath.Base(path)); !found {
			w.log().Debugf("%s: removed", path)
			delete(w.files, path)
		}
	}
}

func (w *watcher) scanFile(reg *reload.TypeRegistry, path string, stats *scanStats) {
	info, err := os.Stat(path)
	if err != nil {
		stats.Failed++
		return
	}
	prev := w.files[path]
	if prev != nil && prev.modTime.Equal(info.ModTime()) && prev.size == info.Size() {
		stats.Unchanged++
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.log().Warningf("cannot read %s: %v", path, err)
		stats.Failed++
		return
	}
	digest := reload.ImageDigest(data)
	if prev != nil && prev.digest == digest {
		prev.modTime, prev.size = info.ModTime(), info.Size()
		stats.Unchanged++
		return
	}

	img, err := reload.DecodeImage(data)
	if err != nil {
		w.log().Warningf("%s: %v", path, err)
		stats.Failed++
		return
	}

	state := &fileState{modTime: info.ModTime(), size: info.Size(), digest: digest, typeName: img.Name}
	tracked := reg.Lookup(img.Name)
	if tracked != nil && tracked.Registry() != reg {
		tracked = nil
	}
	switch {
	case tracked == nil:
		rt, err := reg.AddType(img.Name, data)
		if err != nil {
			w.log().Warningf("%s: %v", path, err)
			stats.Failed++
			return
		}
		if rt == nil {
			w.log().Debugf("%s: %s is not reloadable", path, img.Name)
		}
		w.files[path] = state
		stats.Added++
		return
	case !tracked.IsReloadable():
		w.log().Debugf("%s: %s is fixed, ignoring change", path, img.Name)
		w.files[path] = state
		stats.Unchanged++
		return
	}

	if _, err := reg.LoadNewVersion(img.Name, data, w.loadOpts...); err != nil {
		w.log().Warningf("%s: %v", path, err)
		stats.Failed++
		return
	}
	w.files[path] = state
	stats.Reloaded++
}
