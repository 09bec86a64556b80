package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxWizardAttempts bounds how often the wizard restarts on invalid input.
const maxWizardAttempts = 3

// RunSetupWizard asks for the player settings on in, validates and saves
// them. defaultName is offered when no name is configured yet.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer, defaultName string) error {
	reader := bufio.NewReader(in)

	for attempt := 1; ; attempt++ {
		runWizardPrompts(cfg, reader, out, defaultName)

		result := Validate(cfg)
		if result.IsValid() {
			for _, w := range result.Warnings {
				log.Warn().Str("field", w.Field).Msg(w.Message)
			}
			break
		}

		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if attempt >= maxWizardAttempts || !promptBool(reader, out, "Would you like to try again?", true) {
			return fmt.Errorf("configuration validation failed")
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
	return nil
}

func runWizardPrompts(cfg *Config, reader *bufio.Reader, out io.Writer, defaultName string) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	fmt.Fprintln(out, "duelnet setup")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "-- Player --")
	name := cfg.Player.Name
	if name == "" {
		name = defaultName
	}
	cfg.Player.Name = promptString(reader, out, "Player name", name)
	cfg.Player.Pokemon = promptString(reader, out, "Favourite pokemon (blank to pick each battle)", cfg.Player.Pokemon)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "-- Network --")
	cfg.Network.GamePort = promptInt(reader, out, "Game port (UDP)", cfg.Network.GamePort)
	cfg.Network.DiscoveryPort = promptInt(reader, out, "Discovery port (UDP)", cfg.Network.DiscoveryPort)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "-- Services --")
	cfg.Storage.Enabled = promptBool(reader, out, "Keep battle history", cfg.Storage.Enabled)
	cfg.API.Enabled = promptBool(reader, out, "Enable local status API", cfg.API.Enabled)
	cfg.MQTT.Enabled = promptBool(reader, out, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, out, "MQTT broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = promptInt(reader, out, "MQTT broker port", cfg.MQTT.Port)
	}
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
