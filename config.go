// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package hermesplugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Platform is a native target of the host project.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// PlatformConfig holds per-platform overrides of the app config.
type PlatformConfig struct {
	JsEngine string `json:"jsEngine,omitempty"`
}

// AppConfig is the part of an app.json that selects the JavaScript engine.
type AppConfig struct {
	JsEngine string          `json:"jsEngine,omitempty"`
	Android  *PlatformConfig `json:"android,omitempty"`
	IOS      *PlatformConfig `json:"ios,omitempty"`
}

// LoadAppConfig reads an app.json. Configs nested under an "expo" key are unwrapped.
func LoadAppConfig(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		Expo *AppConfig `json:"expo"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, &FormatError{Source: path, Err: err}
	}
	if wrapper.Expo != nil {
		return wrapper.Expo, nil
	}
	config := &AppConfig{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, &FormatError{Source: path, Err: err}
	}
	return config, nil
}

// IsHermesEnabled reports whether config requests Hermes for platform.
// A platform jsEngine overrides the top-level one; an unset engine is not a request.
func IsHermesEnabled(config *AppConfig, platform Platform) bool {
	if config == nil {
		return false
	}
	engine := config.JsEngine
	var platformConfig *PlatformConfig
	switch platform {
	case PlatformAndroid:
		platformConfig = config.Android
	case PlatformIOS:
		platformConfig = config.IOS
	}
	if platformConfig != nil && platformConfig.JsEngine != "" {
		engine = platformConfig.JsEngine
	}
	return engine == "hermes"
}

// ParseGradleProperties parses gradle.properties style key=value text.
// Lines are trimmed; blank lines, '#' comments and lines without '=' are skipped.
// Keys and values are split on the first '=' and not trimmed further.
func ParseGradleProperties(content string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[key] = value
	}
	return props
}

var (
	podfileHermesPropsReference = regexp.MustCompile(`(?m)^\s*:hermes_enabled\s*=>\s*podfile_properties\['expo\.jsEngine'\]\s*==\s*nil\s*\|\|\s*podfile_properties\['expo\.jsEngine'\]\s*==\s*'hermes',?`)
	podfileHermesEnabled        = regexp.MustCompile(`(?m)^\s*:hermes_enabled\s*=>\s*true,?\s+`)
)

// MaybeInconsistentEngine reports whether the native project under projectRoot
// appears to disagree with hermesEnabled taken from the app config.
// Missing native files are not inconsistencies.
func MaybeInconsistentEngine(projectRoot string, platform Platform, hermesEnabled bool) (bool, error) {
	switch platform {
	case PlatformAndroid:
		return maybeInconsistentEngineAndroid(projectRoot, hermesEnabled)
	case PlatformIOS:
		return maybeInconsistentEngineIOS(projectRoot, hermesEnabled)
	default:
		return false, fmt.Errorf("unknown platform %q", platform)
	}
}

func maybeInconsistentEngineAndroid(projectRoot string, hermesEnabled bool) (bool, error) {
	content, ok, err := readOptional(filepath.Join(projectRoot, "android", "gradle.properties"))
	if err != nil || !ok {
		return false, err
	}
	props := ParseGradleProperties(content)
	return hermesEnabled != (props["hermesEnabled"] == "true"), nil
}

func maybeInconsistentEngineIOS(projectRoot string, hermesEnabled bool) (bool, error) {
	propsPath := filepath.Join(projectRoot, "ios", "Podfile.properties.json")
	content, ok, err := readOptional(propsPath)
	if err != nil {
		return false, err
	}
	if ok {
		props := make(map[string]any)
		if err := json.Unmarshal([]byte(content), &props); err != nil {
			return false, &FormatError{Source: propsPath, Err: err}
		}
		if hermesEnabled != (props["expo.jsEngine"] == "hermes") {
			return true, nil
		}
	}

	content, ok, err = readOptional(filepath.Join(projectRoot, "ios", "Podfile"))
	if err != nil || !ok {
		return false, err
	}
	if podfileHermesPropsReference.MatchString(content) {
		return false, nil
	}
	return hermesEnabled != podfileHermesEnabled.MatchString(content), nil
}

// readOptional reads path, reporting ok=false instead of an error when it does not exist.
func readOptional(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}
