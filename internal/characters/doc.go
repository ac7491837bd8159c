// Package characters maintains the reusable character library that scenes
// reference for subject consistency. The library is bounded and persisted
// as a JSON file alongside the board database.
package characters
