package profile

import (
	"sort"
	"time"

	appErr "contestjudge/pkg/errors"
)

const defaultWorkDir = "/tmp"

// DefaultProfiles returns the built-in profile of every language.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Language:       CPP17,
			Image:          "gcc:13",
			SourceFile:     "main.cpp",
			WorkDir:        defaultWorkDir,
			CompileCmd:     "g++ -std=c++17 -O2 -o {dir}/a.out {src}",
			RunCmd:         "{dir}/a.out",
			CompileTimeout: 10 * time.Second,
		},
		{
			Language:       Java21,
			Image:          "eclipse-temurin:21",
			SourceFile:     "Main.java",
			WorkDir:        defaultWorkDir,
			CompileCmd:     "javac -d {dir} {src}",
			RunCmd:         "java -Xmx{memoryMB}m -cp {dir} Main",
			CompileTimeout: 15 * time.Second,
		},
		{
			Language:   Python312,
			Image:      "python:3.12-slim",
			SourceFile: "main.py",
			WorkDir:    defaultWorkDir,
			RunCmd:     "python3 {src}",
		},
	}
}

// Registry resolves a language to its immutable profile.
type Registry struct {
	profiles map[Language]Profile
}

// NewRegistry builds a registry from the defaults with overrides applied on
// top. Every resulting profile is validated before the registry is returned.
func NewRegistry(overrides []Profile) (*Registry, error) {
	profiles := make(map[Language]Profile, len(AllLanguages))
	for _, p := range DefaultProfiles() {
		profiles[p.Language] = p
	}
	for _, o := range overrides {
		lang, err := ParseLanguage(string(o.Language))
		if err != nil {
			return nil, err
		}
		o.Language = lang
		profiles[lang] = merge(profiles[lang], o)
	}
	for lang, p := range profiles {
		if err := validate(p); err != nil {
			return nil, appErr.Wrapf(err, appErr.InvalidParams, "invalid profile for %s", lang)
		}
	}
	return &Registry{profiles: profiles}, nil
}

// Get returns the profile for lang.
func (r *Registry) Get(lang Language) (Profile, error) {
	p, ok := r.profiles[lang]
	if !ok {
		return Profile{}, appErr.Newf(appErr.LanguageNotSupported, "no profile registered for %s", lang)
	}
	return p, nil
}

// Validate fails when any of languages has no registered profile.
func (r *Registry) Validate(languages []Language) error {
	for _, lang := range languages {
		if _, err := r.Get(lang); err != nil {
			return err
		}
	}
	return nil
}

// Languages returns the registered languages, sorted.
func (r *Registry) Languages() []Language {
	out := make([]Language, 0, len(r.profiles))
	for lang := range r.profiles {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func merge(base, override Profile) Profile {
	base.Language = override.Language
	if override.Image != "" {
		base.Image = override.Image
	}
	if override.SourceFile != "" {
		base.SourceFile = override.SourceFile
	}
	if override.WorkDir != "" {
		base.WorkDir = override.WorkDir
	}
	if override.CompileCmd != "" {
		base.CompileCmd = override.CompileCmd
	}
	if override.RunCmd != "" {
		base.RunCmd = override.RunCmd
	}
	if override.CompileTimeout > 0 {
		base.CompileTimeout = override.CompileTimeout
	}
	return base
}

func validate(p Profile) error {
	if p.Image == "" {
		return appErr.ValidationError("image", "required")
	}
	if p.SourceFile == "" {
		return appErr.ValidationError("sourceFile", "required")
	}
	if p.WorkDir == "" {
		return appErr.ValidationError("workDir", "required")
	}
	if _, _, err := p.Compile(p.SourcePath()); err != nil {
		return err
	}
	if _, err := p.Run(p.SourcePath(), 1000, 256); err != nil {
		return err
	}
	if p.CompileCmd != "" && p.CompileTimeout <= 0 {
		return appErr.ValidationError("compileTimeout", "must be positive when compileCmd is set")
	}
	return nil
}
