package perw

import (
	dpe "debug/pe"
	"math"
	"strings"
)

func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	entropy := 0.0
	length := float64(len(data))
	for _, count := range freq {
		if count > 0 {
			p := float64(count) / length
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

type flagName struct {
	bit  uint32
	name string
}

var sectionFlagNames = []flagName{
	{dpe.IMAGE_SCN_CNT_CODE, "CODE"},
	{dpe.IMAGE_SCN_CNT_INITIALIZED_DATA, "INITIALIZED_DATA"},
	{dpe.IMAGE_SCN_CNT_UNINITIALIZED_DATA, "UNINITIALIZED_DATA"},
	{dpe.IMAGE_SCN_MEM_EXECUTE, "EXECUTABLE"},
	{dpe.IMAGE_SCN_MEM_READ, "READABLE"},
	{dpe.IMAGE_SCN_MEM_WRITE, "WRITABLE"},
	{0x10000000, "SHARED"},
	{dpe.IMAGE_SCN_MEM_DISCARDABLE, "DISCARDABLE"},
}

var dllCharacteristicNames = []flagName{
	{0x0020, "HIGH_ENTROPY_VA"},
	{0x0040, "DYNAMIC_BASE"},
	{0x0080, "FORCE_INTEGRITY"},
	{0x0100, "NX_COMPAT"},
	{0x0200, "NO_ISOLATION"},
	{0x0400, "NO_SEH"},
	{0x0800, "NO_BIND"},
	{0x1000, "APPCONTAINER"},
	{0x2000, "WDM_DRIVER"},
	{0x4000, "GUARD_CF"},
	{0x8000, "TERMINAL_SERVER_AWARE"},
}

func joinFlags(flags uint32, names []flagName) string {
	var out []string
	for _, f := range names {
		if flags&f.bit != 0 {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "None"
	}
	return strings.Join(out, ", ")
}

// SectionFlags returns human-readable section characteristics.
func SectionFlags(flags uint32) string { return joinFlags(flags, sectionFlagNames) }

func DllCharacteristicsString(flags uint16) string {
	return joinFlags(uint32(flags), dllCharacteristicNames)
}

func SubsystemName(subsystem uint16) string {
	switch subsystem {
	case 1:
		return "Native"
	case 2:
		return "Windows GUI"
	case 3:
		return "Windows Console"
	case 5:
		return "OS/2 Console"
	case 7:
		return "POSIX Console"
	case 8:
		return "Native Win9x Driver"
	case 9:
		return "Windows CE GUI"
	case 10:
		return "EFI Application"
	case 11:
		return "EFI Boot Service Driver"
	case 12:
		return "EFI Runtime Driver"
	case 13:
		return "EFI ROM"
	case 14:
		return "Xbox"
	case 16:
		return "Windows Boot Application"
	default:
		return "Unknown"
	}
}
