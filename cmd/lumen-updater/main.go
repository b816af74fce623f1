package main

import (
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/lumen-desktop/updater"
)

var (
	// set on build:
	// go build -o lumen-updater -ldflags="-X main.version=$(git describe --always --long --dirty --tag)" github.com/lumen-desktop/updater/cmd/lumen-updater
	version string
)

func main() {
	// Setup flag pointers
	cfgPathPtr := flag.String("c", updater.DefaultCfgPath, "config file path")
	logLevelPtr := flag.String("v", "", "log level – overrides the level in config file (values \"error\",\"info\",\"debug\")")
	checkPtr := flag.Bool("check", false, "check for an update once, print the result and exit")
	downloadPtr := flag.Bool("download", false, "check for an update, download and postpone it, then exit")
	applyPtr := flag.Bool("apply", false, "hand the process over to the postponed update installer")
	daemonizeModePtr := flag.Bool("d", false, "daemonize – run the process in background")
	printConfigPtr := flag.Bool("p", false, "print the active config")
	versionPtr := flag.Bool("version", false, "show the lumen-updater version")

	flag.Parse()

	// version should be handled first to ensure it will be accessible in case of fatal errors before
	handleFlagVersion(*versionPtr)

	cfg, err := updater.HandleAllConfigSetup(*cfgPathPtr)
	if err != nil {
		log.Fatalf("Failed to handle lumen-updater configuration: %s", err.Error())
	}

	u := updater.New(cfg, *cfgPathPtr, appInfo(*cfgPathPtr))
	u.SetHost(&execHost{})

	handleFlagPrintConfig(*printConfigPtr, cfg)

	setDefaultLogFormatter()

	// log level set in flag has a precedence. If specified we need to set it ASAP
	handleFlagLogLevel(u, *logLevelPtr)

	u.ConfigureLogger()

	oneRunOnlyMode := *checkPtr || *downloadPtr || *applyPtr

	writePidFileIfNeeded(u, oneRunOnlyMode)
	defer removePidFileIfNeeded(u, oneRunOnlyMode)

	handleFlagCheck(*checkPtr, u)
	handleFlagDownload(*downloadPtr, u)
	handleFlagApply(*applyPtr, u)

	handleFlagDaemonizeMode(*daemonizeModePtr)

	// nothing resulted in os.Exit
	// so lets use the default continuous run mode and wait for interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := updater.NewScheduler(u)
	scheduler.ResultFunc = func(info *updater.UpdateInfo, auto bool) {
		if info == nil {
			log.Infoln("No update available")
			return
		}
		log.Infof("Update %s is available. Run `lumen-updater -download` to fetch it", info.Version)
	}
	scheduler.ErrorFunc = func(err error, auto bool) {
		log.WithError(err).Errorln("Update check failed")
	}

	// setup interrupt handler
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM)
	go func() {
		sig := <-sigc
		log.Infof("Got %s signal. Stopping update checks and exit...", sig.String())
		scheduler.Stop()
		cancel()
	}()

	if cfg.AutoCheck || (cfg.StartupNotification && u.HasPendingUpdate()) {
		scheduler.Start()
	} else {
		log.Infoln("Automatic update checks are disabled in the config")
	}

	u.Coordinator().Run(ctx)
}

// appInfo describes this process to the engine. The standalone binary acts
// as a portable copy living next to its executable.
func appInfo(cfgPath string) updater.AppInfo {
	appDir := "."
	if ex, err := os.Executable(); err == nil {
		appDir = filepath.Dir(ex)
	}

	return updater.AppInfo{
		Version:   version,
		AppDir:    appDir,
		ConfigDir: filepath.Dir(cfgPath),
		Installed: false,
	}
}

// execHost hands the process over by spawning the installer detached and
// exiting. A real desktop host would wind down its UI loop first; this
// standalone binary has nothing else to stop.
type execHost struct{}

func (h *execHost) Relaunch(path string, args []string) error {
	cmd := exec.Command(path, args...)
	cmd.Dir = filepath.Dir(path)
	cmd.Env = os.Environ()

	if err := cmd.Start(); err != nil {
		return err
	}

	fmt.Printf("Installer %s started with PID %d, exiting...\n", path, cmd.Process.Pid)
	_ = cmd.Process.Release()
	os.Exit(0)
	return nil
}

func handleFlagVersion(versionFlag bool) {
	if versionFlag {
		fmt.Printf("lumen-updater v%s released under MIT license. https://github.com/lumen-desktop/updater/\n", version)
		os.Exit(0)
	}
}

func handleFlagPrintConfig(printConfig bool, cfg *updater.Config) {
	if printConfig {
		fmt.Println(cfg.DumpToml())
		os.Exit(0)
	}
}

func handleFlagLogLevel(u *updater.Updater, logLevel string) {
	// Check loglevel and if needed warn user and set to default
	if logLevel == string(updater.LogLevelError) || logLevel == string(updater.LogLevelInfo) || logLevel == string(updater.LogLevelDebug) {
		u.SetLogLevel(updater.LogLevel(logLevel))
	} else if logLevel != "" {
		log.Warnf("Invalid log level: \"%s\". Set to default: \"%s\"", logLevel, u.Config.LogLevel)
	}
}

func handleFlagCheck(check bool, u *updater.Updater) {
	if !check {
		return
	}

	info, err := u.CheckForUpdate(false)
	if err != nil {
		fmt.Printf("Update check failed: %s\n", err.Error())
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("No update available")
		os.Exit(0)
	}

	fmt.Printf("Update %s is available\n", info.Version)
	if info.ChangesURL != "" {
		fmt.Printf("What's new: %s\n", info.ChangesURL)
	}
	os.Exit(0)
}

func handleFlagDownload(download bool, u *updater.Updater) {
	if !download {
		return
	}

	info, err := u.CheckForUpdate(false)
	if err != nil {
		fmt.Printf("Update check failed: %s\n", err.Error())
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("No update available")
		os.Exit(0)
	}

	fmt.Printf("Downloading update %s...\n", info.Version)

	ctx, cancel := context.WithCancel(context.Background())
	u.Coordinator().ProgressFunc = func(p updater.Progress) {
		fmt.Printf("\r%d%% of %d bytes", p.Percent(), p.Total)
	}

	var destPath string
	var dlErr error
	go func() {
		destPath, dlErr = u.Download(ctx, info)
		cancel()
	}()

	// progress and completion arrive on this goroutine
	u.Coordinator().Run(ctx)

	fmt.Println()
	if dlErr != nil {
		fmt.Printf("Download failed: %s\n", dlErr.Error())
		os.Exit(1)
	}

	finalPath, err := u.Postpone(info, destPath)
	if err != nil {
		fmt.Printf("Could not postpone the update: %s\n", err.Error())
		fmt.Printf("The downloaded installer is kept at %s\n", finalPath)
		os.Exit(1)
	}

	fmt.Printf("Update %s stored at %s. Run `lumen-updater -apply` to install it\n", info.Version, finalPath)
	os.Exit(0)
}

func handleFlagApply(apply bool, u *updater.Updater) {
	if !apply {
		return
	}

	if !u.HasPendingUpdate() {
		fmt.Println("No pending update to apply")
		os.Exit(0)
	}

	if err := u.ExecutePendingUpdate(); err != nil {
		fmt.Printf("Failed to apply the update: %s\n", err.Error())
		os.Exit(1)
	}
	// not reached: a successful handoff exits the process
	os.Exit(0)
}

func handleFlagDaemonizeMode(daemonizeMode bool) {
	if daemonizeMode && os.Getenv("LUMEN_UPDATER_FORK") != "1" {
		err := rerunDetached()
		if err != nil {
			fmt.Println("Failed to fork process: ", err.Error())
			os.Exit(1)
		}

		os.Exit(0)
	}
}

func rerunDetached() error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "LUMEN_UPDATER_FORK=1")

	err = cmd.Start()
	if err != nil {
		return err
	}

	fmt.Printf("lumen-updater will continue in background...\nPID %d", cmd.Process.Pid)

	_ = cmd.Process.Release()
	return nil
}

func writePidFileIfNeeded(u *updater.Updater, oneRunOnlyMode bool) {
	if u.Config.PidFile != "" && !oneRunOnlyMode && runtime.GOOS != "windows" {
		err := ioutil.WriteFile(u.Config.PidFile, []byte(strconv.Itoa(os.Getpid())), 0664)
		if err != nil {
			log.Errorf("Failed to write pid file at: %s", u.Config.PidFile)
		}
	}
}

func removePidFileIfNeeded(u *updater.Updater, oneRunOnlyMode bool) {
	if u.Config.PidFile != "" && !oneRunOnlyMode && runtime.GOOS != "windows" {
		err := os.Remove(u.Config.PidFile)
		if err != nil {
			log.Errorf("Failed to remove pid file at: %s", u.Config.PidFile)
		}
	}
}

func setDefaultLogFormatter() {
	tfmt := log.TextFormatter{FullTimestamp: true}
	if runtime.GOOS == "windows" {
		tfmt.DisableColors = true
	}

	log.SetFormatter(&tfmt)
}
