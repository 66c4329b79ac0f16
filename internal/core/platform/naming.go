package platform

import (
	"path/filepath"
	"strings"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// ComposeProjectLabel is set by docker compose on every container and network
// it creates.
const ComposeProjectLabel = "com.docker.compose.project"

// DescriptorFile is the file name the platform expects in an app's metadata directory.
const DescriptorFile = "docker-compose.yml"

// MetadataDir returns the directory the platform reads an app's descriptor from.
// Pattern: {appsDir}/{appID}
//
// Example:
//
//	MetadataDir("/DATA/AppData/casaos/apps", "myapp") // returns "/DATA/AppData/casaos/apps/myapp"
func MetadataDir(appsDir, appID string) string {
	return filepath.Join(appsDir, appID)
}

// MetadataPath returns the descriptor location for an app.
// Pattern: {appsDir}/{appID}/docker-compose.yml
func MetadataPath(appsDir, appID string) string {
	return filepath.Join(appsDir, appID, DescriptorFile)
}

// DefaultNetworkName returns the network compose creates for a project.
// Pattern: {appID}_default
func DefaultNetworkName(appID string) string {
	return appID + "_default"
}

// ContainerBelongsToApp reports whether a container is part of an app.
// The compose project label is authoritative; unlabeled containers match by
// the compose naming convention {appID}-{service}-{n}, {appID}_{service}_{n}
// or the bare app id used as a hostname.
func ContainerBelongsToApp(name string, labels map[string]string, appID string) bool {
	if project, ok := labels[ComposeProjectLabel]; ok {
		return project == appID
	}
	name = strings.TrimPrefix(name, "/")
	return name == appID || strings.HasPrefix(name, appID+"-") || strings.HasPrefix(name, appID+"_")
}

// NetworkBelongsToApp reports whether a network is part of an app.
func NetworkBelongsToApp(name string, labels map[string]string, appID string) bool {
	if project, ok := labels[ComposeProjectLabel]; ok {
		return project == appID
	}
	return name == appID || name == DefaultNetworkName(appID)
}
