package executor

import (
	"os"
	"path/filepath"

	"vpo/internal/fileutil"
	"vpo/internal/namemeta"
	"vpo/internal/policy"
	"vpo/internal/services"
)

// ResolveDestination renders the move template against the parsed source
// filename. The rendered path keeps the source extension.
func ResolveDestination(sourcePath string, spec *policy.MoveSpec) (string, error) {
	if spec == nil || spec.DestinationTemplate == "" {
		return "", services.Wrap(services.ErrValidation, "executor", "move", "no destination template", nil)
	}
	meta := namemeta.Parse(filepath.Base(sourcePath))
	dest := namemeta.Render(spec.DestinationTemplate, meta, spec.Fallback)
	if dest == "" {
		return "", services.Wrap(services.ErrValidation, "executor", "move",
			"template produced an empty path for "+sourcePath, nil)
	}
	if filepath.Ext(dest) == "" {
		dest += filepath.Ext(sourcePath)
	}
	return dest, nil
}

// MoveFile relocates the file to dest, creating parent directories. Renames
// stay atomic within a filesystem; crossing filesystems falls back to
// copy+fsync+unlink.
func MoveFile(sourcePath, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "move", dest, err)
	}
	if err := fileutil.MoveFile(sourcePath, dest); err != nil {
		return services.Wrap(services.ErrTransient, "executor", "move", sourcePath+" -> "+dest, err)
	}
	return nil
}
