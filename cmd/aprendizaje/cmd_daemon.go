package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/config"
)

var probeClient = &http.Client{Timeout: 2 * time.Second}

// cmdInit writes the default configuration and a token signing secret
func cmdInit() error {
	dir, err := config.EnsureDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Printf("Config directory: %s ✓\n", dir)

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.SaveLocalConfig(dir, config.DefaultLocalConfig()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Println("Default configuration written ✓")
	} else {
		fmt.Println("Configuration already exists ✓")
	}

	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return err
	}
	generated, err := config.EnsureTokenSecret(dir, cfg)
	if err != nil {
		return err
	}
	if generated {
		fmt.Println("Token signing secret generated ✓")
	}

	fmt.Println()
	fmt.Println("Next: 'aprendizaje start' then 'aprendizaje login'")
	return nil
}

// cmdStart starts the daemon in the background
func cmdStart() error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.DaemonURL()

	if isRunning(addr) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	bin, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(bin)
	cmd.Dir = dir
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(addr) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", addr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'aprendizaje logs')")
}

// cmdStop signals the daemon recorded in the PID file
func cmdStop() error {
	cfg, dir, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.DaemonURL()

	if !isRunning(addr) {
		fmt.Println("Daemon is not running")
		return nil
	}

	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse PID: %w", err)
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(addr) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

// cmdStatus shows daemon status
func cmdStatus() error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.DaemonURL()

	resp, err := probeClient.Get(addr + "/v1/status")
	if err != nil {
		fmt.Println("Status: stopped")
		return nil
	}
	defer resp.Body.Close()

	var status struct {
		Status       string `json:"status"`
		Version      string `json:"version"`
		Database     string `json:"database"`
		AsyncGrading bool   `json:"async_grading"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("parse status: %w", err)
	}

	fmt.Printf("Status:   %s\n", status.Status)
	fmt.Printf("Version:  %s\n", status.Version)
	fmt.Printf("Database: %s\n", status.Database)
	fmt.Printf("Queue:    %s\n", enabled(status.AsyncGrading))
	fmt.Printf("Address:  %s\n", addr)
	return nil
}

// cmdLogs prints the tail of the daemon log
func cmdLogs() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	file, err := os.Open(filepath.Join(dir, "logs", "aprendizajed.log"))
	if os.IsNotExist(err) {
		fmt.Println("No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	return tail(file, os.Stdout, 4096)
}

// tail copies the last complete lines within size bytes of f to w.
func tail(f *os.File, w io.Writer, size int64) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	offset := max(info.Size()-size, 0)
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	reader := bufio.NewReader(f)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}
	_, err = io.Copy(w, reader)
	return err
}

func isRunning(addr string) bool {
	resp, err := probeClient.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("aprendizajed"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "aprendizajed")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("aprendizajed binary not found (build with 'go build ./cmd/aprendizajed')")
}

func loadConfig() (*config.LocalConfig, string, error) {
	dir, err := config.EnsureDir()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFrom(dir)
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}
	return cfg, dir, nil
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
