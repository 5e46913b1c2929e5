package driver

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"github.com/entrhq/nwregress/pkg/config"
	"github.com/entrhq/nwregress/pkg/logging"
)

// AppArg is the shell flag that names the application directory.
func AppArg(dir string) string {
	return "nwapp=" + dir
}

// ChromeArgs returns the command-line arguments chromedriver passes to the shell.
func ChromeArgs(cfg *config.Config) []string {
	args := []string{AppArg(cfg.App.Dir)}
	return append(args, cfg.Driver.ExtraArgs...)
}

func openChromeDriver(cfg *config.Config, log *logging.Logger) (*Session, error) {
	port := cfg.Driver.Port
	if port == 0 {
		p, err := freePort()
		if err != nil {
			return nil, err
		}
		port = p
	}

	log.Infof("starting chromedriver %s on port %d", cfg.Driver.Path, port)
	service, err := selenium.NewChromeDriverService(cfg.Driver.Path, port, selenium.Output(log.Writer()))
	if err != nil {
		return nil, fmt.Errorf("failed to start chromedriver: %w", err)
	}

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{Args: ChromeArgs(cfg)})

	wd, err := selenium.NewRemote(caps, fmt.Sprintf("http://localhost:%d/wd/hub", port))
	if err != nil {
		_ = service.Stop()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	stop := func() error {
		if err := service.Stop(); err != nil {
			return fmt.Errorf("failed to stop chromedriver: %w", err)
		}
		return nil
	}
	return NewSession(&seleniumDriver{wd: wd}, config.BackendChromeDriver, stop), nil
}

// freePort asks the kernel for an unused TCP port.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find a free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

type seleniumDriver struct {
	wd selenium.WebDriver
}

func (d *seleniumDriver) SetImplicitWait(timeout time.Duration) error {
	return d.wd.SetImplicitWaitTimeout(timeout)
}

func (d *seleniumDriver) CurrentURL() (string, error) {
	return d.wd.CurrentURL()
}

func (d *seleniumDriver) WindowHandles() ([]string, error) {
	return d.wd.WindowHandles()
}

func (d *seleniumDriver) SwitchWindow(handle string) error {
	if err := d.wd.SwitchWindow(handle); err != nil {
		return fmt.Errorf("switch to window %s: %w", handle, err)
	}
	return nil
}

func (d *seleniumDriver) EnterFrame(css string) (bool, error) {
	frames, err := d.wd.FindElements(selenium.ByCSSSelector, css)
	if err != nil {
		if isNoSuchElement(err) {
			return false, nil
		}
		return false, fmt.Errorf("find frame %q: %w", css, err)
	}
	if len(frames) == 0 {
		return false, nil
	}
	if err := d.wd.SwitchFrame(frames[0]); err != nil {
		return false, fmt.Errorf("switch to frame %q: %w", css, err)
	}
	return true, nil
}

func (d *seleniumDriver) ExecuteScript(script string) (interface{}, error) {
	return d.wd.ExecuteScript(script, nil)
}

func (d *seleniumDriver) ExecuteScriptElement(script string) (Element, error) {
	raw, err := d.wd.ExecuteScriptRaw(script, nil)
	if err != nil {
		return nil, fmt.Errorf("execute script: %w", err)
	}
	el, err := d.wd.DecodeElement(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: script did not return an element: %v", ErrNoSuchElement, err)
	}
	return seleniumElement{el: el}, nil
}

func (d *seleniumDriver) FindElement(css string) (Element, error) {
	el, err := d.wd.FindElement(selenium.ByCSSSelector, css)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchElement, css)
		}
		return nil, fmt.Errorf("find %q: %w", css, err)
	}
	return seleniumElement{el: el}, nil
}

func (d *seleniumDriver) Quit() error {
	return d.wd.Quit()
}

type seleniumElement struct {
	el selenium.WebElement
}

func (e seleniumElement) Click() error {
	return e.el.Click()
}

// isNoSuchElement matches the W3C "no such element" error code, which the
// client surfaces only as text.
func isNoSuchElement(err error) bool {
	return strings.Contains(err.Error(), "no such element")
}
