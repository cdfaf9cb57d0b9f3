// Package model defines the core data types shared across the navigation
// engine: confirmed sprite locations, navigation hints and query context.
package model
