package handlers

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/mattn/go-isatty"
)

// Color constants for terminal output
const (
	cBlack   = "\u001b[90m"
	cRed     = "\u001b[91m"
	cGreen   = "\u001b[92m"
	cYellow  = "\u001b[93m"
	cBlue    = "\u001b[94m"
	cMagenta = "\u001b[95m"
	cCyan    = "\u001b[96m"
	cWhite   = "\u001b[97m"
	cReset   = "\u001b[0m"
)

// getStatusColor returns the appropriate color for HTTP status codes
func getStatusColor(status int, enableColors bool) string {
	if !enableColors {
		return ""
	}

	switch {
	case status >= 200 && status < 300:
		return cGreen
	case status >= 300 && status < 400:
		return cBlue
	case status >= 400 && status < 500:
		return cYellow
	default:
		return cRed
	}
}

// getMethodColor returns the appropriate color for HTTP methods
func getMethodColor(method string, enableColors bool) string {
	if !enableColors {
		return ""
	}

	switch method {
	case "GET":
		return cCyan
	case "POST":
		return cGreen
	case "PUT":
		return cYellow
	case "DELETE":
		return cRed
	case "PATCH":
		return cMagenta
	case "HEAD":
		return cBlue
	case "OPTIONS":
		return cWhite
	default:
		return cReset
	}
}

// SamplingLogger logs every request except polls of the given paths, which
// are logged once per sampleEvery calls
func SamplingLogger(sampleEvery uint64, sampledPaths ...string) fiber.Handler {
	counters := make(map[string]uint64, len(sampledPaths))
	for _, p := range sampledPaths {
		counters[p] = 0
	}
	var counterMu sync.Mutex

	enableColors := isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") != "1" && os.Getenv("TERM") != "dumb"

	defaultLogger := logger.New(logger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
	})

	return func(c *fiber.Ctx) error {
		path := c.Path()
		counterMu.Lock()
		count, sampled := counters[path]
		if sampled {
			count++
			counters[path] = count
			if count >= sampleEvery {
				counters[path] = 0
			}
		}
		counterMu.Unlock()

		if !sampled {
			return defaultLogger(c)
		}
		if count < sampleEvery {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		status := c.Response().StatusCode()
		method := c.Method()
		resetColor := ""
		if enableColors {
			resetColor = cReset
		}

		fmt.Printf("%s | %s%d%s | %13s | %s | %s%s%s | %s | - [sampled: %d calls]\n",
			time.Now().Format("15:04:05"),
			getStatusColor(status, enableColors),
			status,
			resetColor,
			duration,
			c.IP(),
			getMethodColor(method, enableColors),
			method,
			resetColor,
			path,
			count)
		return err
	}
}
