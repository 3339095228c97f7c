package synth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aws/aws-cdk-go/awscdk/v2/cloudassemblyschema"
	"github.com/aws/jsii-runtime-go"
)

// ManifestFile is the name of the assembly manifest inside an assembly
// directory.
const ManifestFile = "manifest.json"

// Assembly describes a written cloud assembly. File names are relative to
// Dir.
type Assembly struct {
	Dir          string
	TemplateFile string
	// YAMLTemplateFile is set when a YAML rendering was requested.
	YAMLTemplateFile string
	AssetsFile       string
	ManifestFile     string
	// AssetFiles are the staged file assets, without the template.
	AssetFiles []string
	Resources  int
}

func (a *Assembly) path(rel string) string {
	return filepath.Join(a.Dir, rel)
}

func (a *Assembly) readAssets() error {
	manifests, err := ReadAssetManifests(a.Dir)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, m := range manifests {
		a.AssetsFile = m.File
		for _, f := range m.Files {
			if f.Source.Path == a.TemplateFile || seen[f.Source.Path] {
				continue
			}
			seen[f.Source.Path] = true
			a.AssetFiles = append(a.AssetFiles, f.Source.Path)
		}
	}
	sort.Strings(a.AssetFiles)
	return nil
}

// AssetManifest lists the file assets of one stack.
type AssetManifest struct {
	// File is the manifest file name inside the assembly.
	File  string
	Files map[string]FileAsset
}

// FileAsset is a file of the assembly and where it is published.
type FileAsset struct {
	Source       FileSource
	Destinations map[string]FileDestination
}

// FileSource locates an asset inside the assembly.
type FileSource struct {
	Path      string
	Packaging string
}

// FileDestination is an object an asset is published to.
type FileDestination struct {
	BucketName    string
	ObjectKey     string
	AssumeRoleArn string
}

type assetManifestProperties struct {
	File string `json:"file"`
}

// ReadAssetManifests loads every asset manifest of the assembly in dir,
// keyed by artifact ID.
func ReadAssetManifests(dir string) (manifests map[string]*AssetManifest, err error) {
	manifestPath := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(manifestPath); err != nil {
		return nil, fmt.Errorf("no cloud assembly in %s: %w", dir, err)
	}
	defer recoverJSII(&err, "failed to read cloud assembly %s", dir)

	assembly := cloudassemblyschema.Manifest_LoadAssemblyManifest(jsii.String(manifestPath), nil)
	manifests = make(map[string]*AssetManifest)
	if assembly.Artifacts == nil {
		return manifests, nil
	}
	for id, artifact := range *assembly.Artifacts {
		if artifact == nil || artifact.Type != cloudassemblyschema.ArtifactType_ASSET_MANIFEST {
			continue
		}
		props, err := decodeProperties(artifact.Properties)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", id, err)
		}
		m, err := readAssetManifest(dir, props.File)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", id, err)
		}
		manifests[id] = m
	}
	return manifests, nil
}

// decodeProperties reads the untyped properties of an asset manifest
// artifact.
func decodeProperties(raw interface{}) (*assetManifestProperties, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var props assetManifestProperties
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, err
	}
	if props.File == "" {
		return nil, fmt.Errorf("asset manifest artifact names no file")
	}
	return &props, nil
}

func readAssetManifest(dir, file string) (*AssetManifest, error) {
	path := filepath.Join(dir, file)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("missing asset manifest: %w", err)
	}
	loaded := cloudassemblyschema.Manifest_LoadAssetManifest(jsii.String(path))

	m := &AssetManifest{File: file, Files: make(map[string]FileAsset)}
	if loaded.Files == nil {
		return m, nil
	}
	for key, f := range *loaded.Files {
		if f == nil || f.Source == nil {
			continue
		}
		fa := FileAsset{
			Source: FileSource{
				Path:      value(f.Source.Path),
				Packaging: string(f.Source.Packaging),
			},
			Destinations: make(map[string]FileDestination),
		}
		if f.Destinations != nil {
			for name, d := range *f.Destinations {
				if d == nil {
					continue
				}
				fa.Destinations[name] = FileDestination{
					BucketName:    value(d.BucketName),
					ObjectKey:     value(d.ObjectKey),
					AssumeRoleArn: value(d.AssumeRoleArn),
				}
			}
		}
		m.Files[key] = fa
	}
	return m, nil
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
