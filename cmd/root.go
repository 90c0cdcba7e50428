/*
Package cmd implements the command-line interface for the lucid memory
system. It provides commands for consolidating transcripts, recalling
memories, inspecting entities, and reviewing drafts.
*/
package cmd

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/theapemachine/lucid/pkg/logging"
)

/*
Embed a mini filesystem into the binary to hold the default config file.
This will be written to the home directory of the user running the service,
which allows a developer to easily override the config file.
*/
//go:embed cfg/*
var embedded embed.FS

var (
	projectName     = "lucid"
	cfgFile         string
	openaiAPIKey    string
	anthropicAPIKey string
	ownerFlag       string

	rootCmd = &cobra.Command{
		Use:   "lucid",
		Short: "A persistent semantic memory store with a knowledge graph",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the lucid CLI. It initializes the
root command and executes it.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yml",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)

	rootCmd.PersistentFlags().StringVar(
		&openaiAPIKey,
		"openai-api-key",
		os.Getenv("OPENAI_API_KEY"),
		"API key for the OpenAI embedding provider",
	)

	rootCmd.PersistentFlags().StringVar(
		&anthropicAPIKey,
		"anthropic-api-key",
		os.Getenv("ANTHROPIC_API_KEY"),
		"API key for the Anthropic extraction provider",
	)

	rootCmd.PersistentFlags().StringVarP(
		&ownerFlag,
		"owner",
		"o",
		os.Getenv("LUCID_OWNER"),
		"Owner id (uuid) whose memories to operate on",
	)
}

/*
initConfig writes the default config file to the user's home directory
if it doesn't exist, and then reads the config file from there.
*/
func initConfig() {
	var err error

	if err = writeConfig(); err != nil {
		log.Fatal(err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	home, _ := os.UserHomeDir()
	viper.AddConfigPath(home + "/." + projectName)

	if err = viper.ReadInConfig(); err != nil {
		log.Fatal(err)
		return
	}

	logging.Setup()

	if openaiAPIKey != "" {
		_ = os.Setenv("OPENAI_API_KEY", openaiAPIKey)
	}

	if anthropicAPIKey != "" {
		_ = os.Setenv("ANTHROPIC_API_KEY", anthropicAPIKey)
	}
}

/*
writeConfig writes the default config file to the user's home directory.
*/
func writeConfig() (err error) {
	var (
		home, _ = os.UserHomeDir()
		fh      fs.File
		buf     bytes.Buffer
	)

	configDir := home + "/." + projectName

	if !CheckFileExists(configDir) {
		if err = os.MkdirAll(configDir, os.ModePerm); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	for _, file := range []string{cfgFile} {
		fullPath := configDir + "/" + file

		if CheckFileExists(fullPath) {
			continue
		}

		if fh, err = embedded.Open("cfg/" + file); err != nil {
			return fmt.Errorf("failed to open embedded config file: %w", err)
		}

		if _, err = io.Copy(&buf, fh); err != nil {
			fh.Close()
			return fmt.Errorf("failed to read embedded config file: %w", err)
		}

		if err = os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
			fh.Close()
			return fmt.Errorf("failed to write config file: %w", err)
		}

		log.Println("wrote config file to", fullPath)
		buf.Reset()
		fh.Close()
	}

	return nil
}

func CheckFileExists(filePath string) bool {
	_, error := os.Stat(filePath)
	return !errors.Is(error, os.ErrNotExist)
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
lucid is a persistent semantic memory store. It consolidates raw
conversation transcripts into deduplicated memories connected through
entity hubs and a typed knowledge graph, and recalls them by meaning.
`
