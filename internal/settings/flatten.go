package settings

import "sort"

// Keys used by Flatten.
const (
	KeyForceSSL                      = "force_ssl"
	KeyPublicFileServerEnabled       = "public_file_server.enabled"
	KeyPublicFileServerHeaders       = "public_file_server.headers"
	KeyLogLevel                      = "log_level"
	KeyLogTags                       = "log_tags"
	KeyAssetsCompile                 = "assets.compile"
	KeyAssetsDigest                  = "assets.digest"
	KeyGoogleCloudProjectID          = "google_cloud.project_id"
	KeyGoogleCloudKeyfile            = "google_cloud.keyfile"
	KeyActiveStorageVariantProcessor = "active_storage.variant_processor"
)

// Flatten returns the settings keyed by dotted name. Optional sections are left out
// when their integration is disabled.
func (s Settings) Flatten() map[string]any {
	headers := make(map[string]string, len(s.PublicFileServer.headers))
	for name, value := range s.PublicFileServer.headers {
		headers[name] = value
	}

	out := map[string]any{
		KeyForceSSL:                s.ForceSSL,
		KeyPublicFileServerEnabled: s.PublicFileServer.Enabled,
		KeyPublicFileServerHeaders: headers,
		KeyLogLevel:                s.LogLevel.String(),
		KeyLogTags:                 s.LogTags(),
		KeyAssetsCompile:           s.Assets.Compile,
		KeyAssetsDigest:            s.Assets.Digest,
	}

	if s.googleCloud != nil {
		out[KeyGoogleCloudProjectID] = s.googleCloud.ProjectID
		out[KeyGoogleCloudKeyfile] = s.googleCloud.Keyfile
	}

	if s.activeStorage != nil {
		out[KeyActiveStorageVariantProcessor] = s.activeStorage.VariantProcessor.String()
	}

	return out
}

// Keys returns the sorted dotted names present in Flatten.
func (s Settings) Keys() []string {
	flat := s.Flatten()
	keys := make([]string, 0, len(flat))
	for key := range flat {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MarshalYAML renders the flattened view.
func (s Settings) MarshalYAML() (any, error) {
	return s.Flatten(), nil
}
