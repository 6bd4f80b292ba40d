package fsr

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ShaderID identifies the compiled upscale program asset hosts load and pass
// to NewUpscaler.
const ShaderID = "0000012c0b87e7b00000004600000052"

// version is the plugin release.
const version = "1.0.1"

// Description describes the effect to a host's plugin registry.
type Description struct {
	Name          string
	Category      string
	Description   string
	Author        string
	RepositoryURL string
	Version       *semver.Version
}

// PluginDescription returns the description of this effect.
func PluginDescription() Description {
	return Description{
		Name:          "AMD FidelityFX Super Resolution 1.0",
		Category:      "Rendering",
		Description:   "AMD FidelityFX Super Resolution 1.0: spatial upscaling with edge-adaptive upsampling and contrast-adaptive sharpening.",
		Author:        "AMD",
		RepositoryURL: "https://github.com/FlaxEngine/FidelityFX-FSR",
		Version:       semver.MustParse(version),
	}
}

// String returns "Name vX.Y.Z".
func (d Description) String() string {
	return fmt.Sprintf("%s v%s", d.Name, d.Version)
}

// Satisfies reports whether the plugin version meets a constraint such as
// ">= 1.0, < 2". Hosts use it to refuse incompatible plugin builds.
func (d Description) Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("fsr: version constraint %q: %w", constraint, err)
	}
	return c.Check(d.Version), nil
}
