package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog lists every regular file beneath root as a slash-separated path
// relative to root, sorted. Hidden entries are skipped. Symlinks to regular
// files are listed; symlinked directories are not descended into, so a
// link cycle cannot trap the walk.
// The walk is iterative so deeply nested depots cannot exhaust the stack.
func (p *LocalProvider) Catalog(ctx context.Context, root string) ([]string, error) {
	stat, err := p.Stat(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var images []string
	stack := []string{""}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rel := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := p.List(ctx, filepath.Join(root, rel))
		if err != nil {
			return nil, fmt.Errorf("failed to list directory %s: %w", filepath.Join(root, rel), err)
		}

		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			entryRel := filepath.Join(rel, entry.Name())
			if entry.Mode()&os.ModeSymlink != 0 {
				target, err := p.Stat(ctx, filepath.Join(root, entryRel))
				if err != nil || !target.Mode().IsRegular() {
					continue
				}
				entry = target
			}
			switch {
			case entry.IsDir():
				stack = append(stack, entryRel)
			case entry.Mode().IsRegular():
				images = append(images, filepath.ToSlash(entryRel))
			}
		}
	}

	sort.Strings(images)
	return images, nil
}
