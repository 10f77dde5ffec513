package files

import (
	"os"
	"path/filepath"
	"strings"
)

// maxSymlinkHops bounds link expansion; longer chains are treated as loops.
const maxSymlinkHops = 40

// resolveWithin joins rel onto base and follows every symlink along the
// result, dangling links included. It returns the resolved target and its
// path relative to the resolved base; ok is false when the target is not
// strictly inside base.
func resolveWithin(base, rel string) (target, inner string, ok bool) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", "", false
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(filepath.ToSlash(rel), "/") || filepath.VolumeName(rel) != "" {
		return "", "", false
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return "", "", false
	}
	candidate := filepath.Clean(filepath.Join(base, filepath.FromSlash(rel)))
	if !isWithinDir(base, candidate) || candidate == base {
		return "", "", false
	}

	realBase, ok := resolvePath(base)
	if !ok {
		return "", "", false
	}
	realTarget, ok := resolvePath(candidate)
	if !ok || !isWithinDir(realBase, realTarget) || realTarget == realBase {
		return "", "", false
	}
	inner, err = filepath.Rel(realBase, realTarget)
	if err != nil {
		return "", "", false
	}
	return realTarget, inner, true
}

func isWithinDir(base, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(base), filepath.Clean(target))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolvePath returns where an absolute path leads once every symlink along
// it is expanded. Components that do not exist are kept literally, so a
// dangling link resolves to the location a write would create. ok is false
// for unreadable links and loops.
func resolvePath(path string) (string, bool) {
	hops := 0
	return expand(filepath.Clean(path), &hops)
}

func expand(path string, hops *int) (string, bool) {
	vol := filepath.VolumeName(path)
	sep := string(filepath.Separator)
	resolved := vol + sep
	var ok bool
	parts := strings.Split(strings.TrimPrefix(path[len(vol):], sep), sep)

	for i, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, part)
		info, err := os.Lstat(next)
		if err != nil {
			rest := append([]string{next}, parts[i+1:]...)
			return filepath.Clean(filepath.Join(rest...)), true
		}
		if info.Mode()&os.ModeSymlink == 0 {
			resolved = next
			continue
		}

		*hops++
		if *hops > maxSymlinkHops {
			return "", false
		}
		link, err := os.Readlink(next)
		if err != nil {
			return "", false
		}
		if !filepath.IsAbs(link) {
			link = filepath.Join(resolved, link)
		}
		if resolved, ok = expand(filepath.Clean(link), hops); !ok {
			return "", false
		}
	}
	return resolved, true
}
