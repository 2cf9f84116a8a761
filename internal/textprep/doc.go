// Package textprep turns user input into speakable text: markdown
// stripping, sentence splitting, and the normalization used for cache keys.
package textprep
