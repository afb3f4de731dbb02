// Package config loads runtime configuration with viper.
//
// Sources, lowest precedence first: built-in defaults, coderag.{yaml,json}
// in the working directory (or an explicit file), a .env file, CODERAG_*
// environment variables, then command-line flags. Provider keys also fall
// back to their conventional names (OPENAI_API_KEY, JINA_API_KEY).
package config
