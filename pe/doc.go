// Package pe picks the view family matching the pointer width of the
// running Windows process: pe64 on amd64 and arm64, pe32 on 386 and arm.
// It is empty on other platforms.
package pe
