package fingerprint

// platform is one of the three synthetic device platforms a fingerprint can
// claim (spec §4.1).
type platform string

const (
	platformDarwin platform = "darwin"
	platformWin32  platform = "win32"
	platformLinux  platform = "linux"
)

var platforms = []platform{platformDarwin, platformWin32, platformLinux}

// archPool is shared across platforms: both draw CPU architecture uniformly
// from {x64, arm64} (spec §3).
var archPool = []string{"x64", "arm64"}

var osVersionPools = map[platform][]string{
	platformDarwin: {"14.5", "14.6", "15.0", "15.1"},
	platformWin32:  {"10.0.19045", "10.0.22631", "11.0.22631"},
	platformLinux:  {"5.15.0", "6.2.0", "6.5.0", "6.8.0"},
}

// editorVersionPool is the fixed pool of IDE build versions embedded in the
// user-agent string as "Code/<version>".
var editorVersionPool = []string{"1.93.1", "1.94.2", "1.95.0", "1.95.3", "1.96.0"}

// chromeVersionPool is the fixed pool of Chrome/engine versions; all are
// Chrome >= 110 per spec §4.2's fetch fingerprint requirement.
var chromeVersionPool = []string{
	"124.0.6367.207",
	"126.0.6478.127",
	"128.0.6613.137",
	"130.0.6723.92",
}

var ideTypePool = []string{"IDE_UNSPECIFIED", "VSCODE", "JETBRAINS"}

var pluginTypePool = []string{"GEMINI", "ANTIGRAVITY", "CODEIUM"}

// clientMetadataPlatform maps a generation platform to the enum clientMetadata
// actually sends upstream (spec §3: platform ∈ {unspecified, windows, linux, macos}).
func clientMetadataPlatform(p platform) string {
	switch p {
	case platformDarwin:
		return "macos"
	case platformWin32:
		return "windows"
	case platformLinux:
		return "linux"
	default:
		return "unspecified"
	}
}

// HostPlatform maps the real host OS (GOOS) to the platform enum used by
// Throttled Fetch's browser-mimicking client (spec §4.2): darwin->macos,
// linux->linux, win32/windows->windows, anything else->windows.
func HostPlatform(goos string) string {
	switch goos {
	case "darwin":
		return "macos"
	case "linux":
		return "linux"
	case "windows":
		return "windows"
	default:
		return "windows"
	}
}
