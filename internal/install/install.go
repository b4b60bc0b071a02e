package install

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const githubAPI = "https://api.github.com"

// Networks published outside official release assets.
var maiaDirectURLs = map[int]string{
	2200: "https://github.com/CallOn84/LeelaNets/raw/refs/heads/main/Nets/Maia%202200/maia-2200.pb.gz",
}

var maiaRepos = []string{
	"maiachess/maia-chess",
	"facebookresearch/maia-chess",
}

// SupportedMaiaLevels are the rating levels with published networks.
var SupportedMaiaLevels = []int{1100, 1200, 1300, 1400, 1500, 1600, 1700, 1800, 1900, 2200}

var bestNetworkURLs = []string{
	"https://lczero.org/get_network?best=true",
	"https://lczero.org/api/best-network",
}

// Installer resolves the lc0 binary and downloads network weights into the
// weights directory.
type Installer struct {
	weightsDir string
	http       *fasthttp.Client
	log        *zap.Logger
}

func New(weightsDir string, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Installer{
		weightsDir: weightsDir,
		http: &fasthttp.Client{
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		log: log,
	}
}

// FindLc0 locates the lc0 binary on PATH.
func FindLc0() (string, error) {
	p, err := exec.LookPath("lc0")
	if err != nil {
		return "", fmt.Errorf("lc0 not found on PATH: %w", err)
	}
	return p, nil
}

// InstallMaia downloads one practice network and returns the saved path.
func (i *Installer) InstallMaia(level int) (string, error) {
	url, err := i.findMaiaAssetURL(level)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(i.weightsDir, fmt.Sprintf("maia-%d.pb.gz", level))
	if err := i.download(url, dest); err != nil {
		return "", fmt.Errorf("download maia %d: %w", level, err)
	}
	return dest, nil
}

// InstallMaiaAll downloads every supported practice network, skipping
// levels that fail.
func (i *Installer) InstallMaiaAll() []string {
	var paths []string
	for _, level := range SupportedMaiaLevels {
		p, err := i.InstallMaia(level)
		if err != nil {
			i.log.Warn("maia download failed", zap.Int("level", level), zap.Error(err))
			continue
		}
		i.log.Info("maia network installed", zap.String("path", p))
		paths = append(paths, p)
	}
	return paths
}

// InstallBestNetwork downloads the current best strong network.
func (i *Installer) InstallBestNetwork() (string, error) {
	dest := filepath.Join(i.weightsDir, "leela.pb.gz")
	var lastErr error
	for _, url := range bestNetworkURLs {
		if err := i.download(url, dest); err != nil {
			lastErr = err
			continue
		}
		return dest, nil
	}
	return "", fmt.Errorf("download best network: %w", lastErr)
}

type releaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

type release struct {
	Assets []releaseAsset `json:"assets"`
}

func (i *Installer) findMaiaAssetURL(level int) (string, error) {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`(?i)maia[-_]?%d.*\.pb(\.gz)?$`, level)),
		regexp.MustCompile(fmt.Sprintf(`(?i)maia[-_]?%d.*weights.*\.gz$`, level)),
	}
	for _, repo := range maiaRepos {
		body, err := i.get(fmt.Sprintf("%s/repos/%s/releases/latest", githubAPI, repo))
		if err != nil {
			continue
		}
		var rel release
		if err := json.Unmarshal(body, &rel); err != nil {
			continue
		}
		for _, a := range rel.Assets {
			for _, pat := range patterns {
				if pat.MatchString(a.Name) && a.DownloadURL != "" {
					return a.DownloadURL, nil
				}
			}
		}
	}
	if url, ok := maiaDirectURLs[level]; ok {
		return url, nil
	}
	return "", fmt.Errorf("no published network for maia %d", level)
}

func (i *Installer) get(url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("User-Agent", "lcstudy-installer")
	req.SetRequestURI(url)

	if err := i.http.DoRedirects(req, resp, 10); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode(), url)
	}
	body, err := resp.BodyUncompressed()
	if err != nil {
		body = resp.Body()
	}
	return append([]byte(nil), body...), nil
}

func (i *Installer) download(url, dest string) error {
	body, err := i.get(url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, body, 0o644)
}
