// Command configgen renders one judge-service config per deployment from a
// shared base file, so api, worker, failure and scheduler processes can be
// scaled separately while keeping database, queue and storage settings in sync.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

var knownRoles = map[string]bool{
	"api":       true,
	"worker":    true,
	"failure":   true,
	"scheduler": true,
}

type Profile struct {
	OutputDir   string                       `yaml:"outputDir"`
	Base        string                       `yaml:"base"`
	Shared      map[string]interface{}       `yaml:"shared"`
	Deployments map[string]DeploymentProfile `yaml:"deployments"`
}

type DeploymentProfile struct {
	Roles     []string               `yaml:"roles"`
	Output    string                 `yaml:"output"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/deploy-profile.yaml", "Path to deployment profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	flag.Parse()

	if err := run(*profilePath, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
}

func run(profilePath, outputDir string) error {
	profilePathAbs, err := filepath.Abs(profilePath)
	if err != nil {
		return fmt.Errorf("resolve profile path failed: %w", err)
	}
	profile, err := loadProfile(profilePathAbs)
	if err != nil {
		return err
	}
	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return errors.New("output directory is required")
	}
	profileDir := filepath.Dir(profilePathAbs)
	if !filepath.IsAbs(profile.OutputDir) {
		profile.OutputDir = filepath.Join(profileDir, profile.OutputDir)
	}
	basePath := profile.Base
	if !filepath.IsAbs(basePath) {
		basePath = filepath.Join(profileDir, basePath)
	}
	base, err := loadYAML(basePath)
	if err != nil {
		return fmt.Errorf("load base config failed: %w", err)
	}

	names := make([]string, 0, len(profile.Deployments))
	for name := range profile.Deployments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		deployment := profile.Deployments[name]
		rendered, err := render(base, profile.Shared, deployment)
		if err != nil {
			return fmt.Errorf("render %q failed: %w", name, err)
		}
		if err := writeYAML(outputPath(profile.OutputDir, name, deployment), rendered); err != nil {
			return fmt.Errorf("write %q failed: %w", name, err)
		}
	}
	return nil
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile failed: %w", err)
	}
	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile failed: %w", err)
	}
	if profile.Base == "" {
		return nil, errors.New("profile has no base config")
	}
	if len(profile.Deployments) == 0 {
		return nil, errors.New("profile has no deployments")
	}
	return &profile, nil
}

// render layers shared settings, then the deployment overrides, on top of
// base and stamps the deployment's roles.
func render(base interface{}, shared map[string]interface{}, deployment DeploymentProfile) (map[string]interface{}, error) {
	if len(deployment.Roles) == 0 {
		return nil, errors.New("deployment has no roles")
	}
	for _, role := range deployment.Roles {
		if !knownRoles[role] {
			return nil, fmt.Errorf("unknown role %q", role)
		}
	}

	merged, err := mergeMap(normalizeValue(base), normalizeValue(shared))
	if err != nil {
		return nil, err
	}
	if len(deployment.Overrides) > 0 {
		if merged, err = mergeMap(merged, normalizeValue(deployment.Overrides)); err != nil {
			return nil, err
		}
	}
	root := merged.(map[string]interface{})
	roles := make([]interface{}, 0, len(deployment.Roles))
	for _, role := range deployment.Roles {
		roles = append(roles, role)
	}
	root["roles"] = roles
	return root, nil
}

func outputPath(outputDir, name string, deployment DeploymentProfile) string {
	output := deployment.Output
	if output == "" {
		output = "judge_service." + name + ".yaml"
	}
	if filepath.IsAbs(output) {
		return output
	}
	return filepath.Join(outputDir, output)
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml failed: %w", err)
	}
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse yaml failed: %w", err)
	}
	return value, nil
}

func writeYAML(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir failed: %w", err)
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml failed: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case nil:
		return map[string]interface{}{}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeNested(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[fmt.Sprintf("%v", k)] = normalizeNested(v)
		}
		return out
	default:
		return value
	}
}

func normalizeNested(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return normalizeValue(typed)
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalizeNested(item))
		}
		return out
	default:
		return value
	}
}

// mergeMap deep-merges maps; lists and scalars in override replace base.
func mergeMap(base, override interface{}) (interface{}, error) {
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, errors.New("override config is not a map")
	}

	merged := make(map[string]interface{}, len(baseMap))
	for k, v := range baseMap {
		merged[k] = v
	}
	for key, overrideValue := range overrideMap {
		baseChild, baseIsMap := merged[key].(map[string]interface{})
		overrideChild, overrideIsMap := overrideValue.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			combined, err := mergeMap(baseChild, overrideChild)
			if err != nil {
				return nil, err
			}
			merged[key] = combined
			continue
		}
		merged[key] = overrideValue
	}
	return merged, nil
}
