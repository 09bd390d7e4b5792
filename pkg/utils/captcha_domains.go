package utils

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aeodev/aiscrape/internal/logging"
)

var (
	// CaptchaDomainsFile path can be configured via environment variable
	CaptchaDomainsFile = getConfiguredCaptchaDomainsFile()
)

func getConfiguredCaptchaDomainsFile() string {
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		return fmt.Sprintf("%s/captcha-domains.txt", dataDir)
	}
	return "captcha-domains.txt"
}

// CaptchaDomainManager remembers which domains have been observed behind a
// captcha challenge and persists them to CaptchaDomainsFile. No fetcher tier
// consults it; the tiers detect captchas from page content.
type CaptchaDomainManager struct {
	domains map[string]time.Time // domain -> first seen time
	mu      sync.RWMutex
	logger  logging.Logger
}

// NewCaptchaDomainManager creates a new captcha domain manager.
func NewCaptchaDomainManager() *CaptchaDomainManager {
	manager := &CaptchaDomainManager{
		domains: make(map[string]time.Time),
		logger:  logging.GetGlobalLogger(),
	}

	if err := manager.loadDomains(); err != nil {
		manager.logger.Warn("failed to load captcha domains file", map[string]interface{}{"error": err.Error()})
	}

	return manager
}

// IsKnownCaptchaDomain checks if a domain is known to have captcha protection.
func (cdm *CaptchaDomainManager) IsKnownCaptchaDomain(urlStr string) bool {
	domain, err := extractDomain(urlStr)
	if err != nil {
		cdm.logger.Debug("failed to extract domain", map[string]interface{}{"url": urlStr, "error": err.Error()})
		return false
	}

	cdm.mu.RLock()
	defer cdm.mu.RUnlock()

	_, exists := cdm.domains[domain]
	return exists
}

// AddCaptchaDomain adds a domain to the captcha domains list.
func (cdm *CaptchaDomainManager) AddCaptchaDomain(urlStr string) error {
	domain, err := extractDomain(urlStr)
	if err != nil {
		return fmt.Errorf("failed to extract domain from URL %s: %w", urlStr, err)
	}

	cdm.mu.Lock()
	defer cdm.mu.Unlock()

	if _, exists := cdm.domains[domain]; exists {
		cdm.logger.Debug("domain already in captcha list", map[string]interface{}{"domain": domain})
		return nil
	}

	cdm.domains[domain] = time.Now()

	cdm.logger.Info("added domain to captcha protection list", map[string]interface{}{
		"domain": domain,
		"url":    urlStr,
	})

	if err := cdm.saveDomains(); err != nil {
		return fmt.Errorf("failed to save captcha domains: %w", err)
	}

	return nil
}

// GetKnownDomains returns a copy of all known captcha domains.
func (cdm *CaptchaDomainManager) GetKnownDomains() map[string]time.Time {
	cdm.mu.RLock()
	defer cdm.mu.RUnlock()

	result := make(map[string]time.Time)
	for domain, firstSeen := range cdm.domains {
		result[domain] = firstSeen
	}

	return result
}

// GetDomainsCount returns the number of known captcha domains.
func (cdm *CaptchaDomainManager) GetDomainsCount() int {
	cdm.mu.RLock()
	defer cdm.mu.RUnlock()
	return len(cdm.domains)
}

func (cdm *CaptchaDomainManager) loadDomains() error {
	file, err := os.Open(CaptchaDomainsFile)
	if err != nil {
		if os.IsNotExist(err) {
			cdm.logger.Debug("captcha domains file does not exist, starting with empty list")
			return nil
		}
		return fmt.Errorf("failed to open captcha domains file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	domainsLoaded := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "\t", 2)
		domain := parts[0]

		var firstSeen time.Time
		if len(parts) > 1 {
			if parsed, err := time.Parse(time.RFC3339, parts[1]); err == nil {
				firstSeen = parsed
			} else {
				firstSeen = time.Now()
			}
		} else {
			firstSeen = time.Now()
		}

		cdm.domains[domain] = firstSeen
		domainsLoaded++
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading captcha domains file: %w", err)
	}

	cdm.logger.Info("loaded captcha domains from file", map[string]interface{}{"count": domainsLoaded})
	return nil
}

func (cdm *CaptchaDomainManager) saveDomains() error {
	file, err := os.Create(CaptchaDomainsFile)
	if err != nil {
		return fmt.Errorf("failed to create captcha domains file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "# Captcha-protected domains (automatically managed)\n")
	fmt.Fprintf(file, "# Format: domain\\tfirst_seen_timestamp\n")
	fmt.Fprintf(file, "# This file is auto-generated and should not be manually edited\n\n")

	for domain, firstSeen := range cdm.domains {
		fmt.Fprintf(file, "%s\t%s\n", domain, firstSeen.Format(time.RFC3339))
	}

	return nil
}

func extractDomain(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return "", fmt.Errorf("no hostname found in URL")
	}

	if strings.HasPrefix(hostname, "www.") {
		hostname = hostname[4:]
	}

	return hostname, nil
}
