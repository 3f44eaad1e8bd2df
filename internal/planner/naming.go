package planner

import (
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"
)

// DEMSuffix names the elevation model every terrain overlay reads.
const DEMSuffix = "dem"

// Filename returns <project>_<region>_<suffix>.tif, with _prv before the
// extension for preview builds.
func Filename(project, region, suffix string, preview bool) string {
	name := project + "_" + region + "_" + suffix
	if preview {
		name += "_prv"
	}
	return name + ".tif"
}

// withSuffix inserts tag before the extension: a.tif -> a_tag.tif.
func withSuffix(path, tag string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + tag + ext
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// q shell-quotes each word; words without special characters are unchanged.
func q(words ...string) string {
	return shellquote.Join(words...)
}

// cmdline joins the non-empty parts with single spaces.
func cmdline(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
