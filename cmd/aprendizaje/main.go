package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

const pidFile = "aprendizajed.pid"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = cmdInit()
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "login":
		err = cmdLogin(os.Args[2:])
	case "logout":
		err = cmdLogout()
	case "whoami":
		err = cmdWhoami()
	case "extend":
		err = cmdExtend()
	case "watch":
		err = cmdWatch()
	case "run":
		err = cmdRun(os.Args[2:])
	case "grade":
		err = cmdGrade(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("aprendizaje %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Aprendizaje Adaptativo - session and diagnostics client

Usage:
  aprendizaje <command> [arguments]

Setup Commands:
  init              Create ~/.aprendizaje with a default configuration

Daemon Commands:
  start             Start the aprendizajed daemon
  stop              Stop the daemon
  status            Show daemon status
  logs              View daemon logs

Session Commands:
  login [email]     Sign in and store the session
  logout            End the stored session
  whoami            Show the signed-in user and token expiry
  extend            Renew the session token
  watch             Keep the session open, prompting before it expires

Diagnostic Commands:
  run <file|->              Run a JavaScript snippet and print its console output
  grade <file|-> <expected> Run a snippet and check its output

Integration Commands:
  mcp               Start MCP server on stdio

Other:
  help              Show this help message
  version           Show version information

Examples:
  aprendizaje start
  aprendizaje login ana@example.com
  aprendizaje grade quiz.js "42"
  aprendizaje watch`)
}
