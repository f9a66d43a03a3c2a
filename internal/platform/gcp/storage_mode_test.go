package gcp

import (
	"errors"
	"testing"
)

func setStorageEnv(t *testing.T, mode, emulator, bucket string) {
	t.Helper()
	t.Setenv("OBJECT_STORAGE_MODE", mode)
	t.Setenv("STORAGE_EMULATOR_HOST", emulator)
	t.Setenv("MIX_ASSET_BUCKET", bucket)
	t.Setenv("MIX_ASSET_CDN_DOMAIN", "")
	t.Setenv("OBJECT_STORAGE_PUBLIC_BASE_URL", "")
}

func TestResolveObjectStorageConfigFromEnv(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		emulator string
		want     ObjectStorageMode
	}{
		{name: "default gcs", want: ObjectStorageModeGCS},
		{name: "explicit gcs ignores emulator", mode: "gcs", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCS},
		{name: "explicit emulator", mode: "gcs_emulator", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator},
		{name: "emulator host implies emulator", emulator: "http://fake-gcs:4443", want: ObjectStorageModeGCSEmulator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setStorageEnv(t, tc.mode, tc.emulator, "mix-assets")
			cfg, err := ResolveObjectStorageConfigFromEnv()
			if err != nil {
				t.Fatalf("ResolveObjectStorageConfigFromEnv: %v", err)
			}
			if cfg.Mode != tc.want {
				t.Fatalf("mode: want=%q got=%q", tc.want, cfg.Mode)
			}
		})
	}
}

func TestResolveObjectStorageConfigFromEnvErrors(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		emulator string
		bucket   string
		code     ObjectStorageConfigErrorCode
	}{
		{name: "invalid mode", mode: "local", bucket: "mix-assets", code: ObjectStorageConfigErrorInvalidMode},
		{name: "missing bucket", mode: "gcs", code: ObjectStorageConfigErrorMissingBucket},
		{name: "missing emulator host", mode: "gcs_emulator", bucket: "mix-assets", code: ObjectStorageConfigErrorMissingEmulatorHost},
		{name: "relative emulator host", mode: "gcs_emulator", emulator: "fake-gcs:4443", bucket: "mix-assets", code: ObjectStorageConfigErrorInvalidURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setStorageEnv(t, tc.mode, tc.emulator, tc.bucket)
			_, err := ResolveObjectStorageConfigFromEnv()
			var cfgErr *ObjectStorageConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ObjectStorageConfigError, got %v", err)
			}
			if cfgErr.Code != tc.code {
				t.Fatalf("code: want=%q got=%q", tc.code, cfgErr.Code)
			}
		})
	}
}

func TestPublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  ObjectStorageConfig
		want string
	}{
		{
			name: "gcs default",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "mix-assets"},
			want: "https://storage.googleapis.com/mix-assets/renders/run/mix.mp3",
		},
		{
			name: "cdn",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "mix-assets", CDNDomain: "cdn.example.com"},
			want: "https://cdn.example.com/renders/run/mix.mp3",
		},
		{
			name: "public base",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCS, Bucket: "mix-assets", PublicBaseURL: "http://localhost:9000"},
			want: "http://localhost:9000/mix-assets/renders/run/mix.mp3",
		},
		{
			name: "emulator",
			cfg:  ObjectStorageConfig{Mode: ObjectStorageModeGCSEmulator, Bucket: "mix-assets", EmulatorHost: "http://fake-gcs:4443"},
			want: "http://fake-gcs:4443/storage/v1/b/mix-assets/o/renders%2Frun%2Fmix.mp3?alt=media",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := publicURL(tc.cfg, "/renders/run/mix.mp3"); got != tc.want {
				t.Fatalf("want=%q got=%q", tc.want, got)
			}
		})
	}
}

func TestContentTypeForKey(t *testing.T) {
	for key, want := range map[string]string{
		"a/mix.mp3":           "audio/mpeg",
		"a/mix.WAV":           "audio/wav",
		"a/manifest.json?x=1": "application/json",
		"a/notes.txt":         "",
	} {
		if got := ContentTypeForKey(key); got != want {
			t.Fatalf("%s: want=%q got=%q", key, want, got)
		}
	}
}
