package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// dangerousChars are rejected in hosts and host paths.
var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

// Validate checks struct tags first and then the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validatePreviewConfig(&cfg.Preview); err != nil {
		return fmt.Errorf("preview config: %w", err)
	}
	if err := validateSandboxConfig(&cfg.Sandbox); err != nil {
		return fmt.Errorf("sandbox config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	for _, char := range append(dangerousChars, "\\") {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	return nil
}

func validatePreviewConfig(config *PreviewConfig) error {
	seen := make(map[string]string, 3)
	for name, path := range map[string]string{
		"markup_file": config.MarkupFile,
		"style_file":  config.StyleFile,
		"script_file": config.ScriptFile,
	} {
		if other, dup := seen[path]; dup {
			return fmt.Errorf("%s and %s both point at %s", other, name, path)
		}
		seen[path] = name
	}

	if strings.ContainsAny(config.ScriptName, "\r\n") {
		return fmt.Errorf("script_name must be a single line")
	}

	return nil
}

func validateSandboxConfig(config *SandboxConfig) error {
	if config.MirrorDir == "" {
		return nil
	}

	return validatePath(config.MirrorDir)
}

// validatePath validates a host path for security
func validatePath(path string) error {
	cleanPath := filepath.Clean(path)

	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

// formatValidationError reports the first failed tag with its field path.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}

	return err
}
