//go:build microblockdebug

package microblock

import "fmt"

const debugChecks = true

func assertEncodable(minX, minY, minZ, maxX, maxY, maxZ, material int) {
	if !validSpan(minX, maxX) || !validSpan(minY, maxY) || !validSpan(minZ, maxZ) || material < 0 || material > 255 {
		panic(fmt.Sprintf("microblock: нельзя упаковать (%d,%d,%d)-(%d,%d,%d) материал %d",
			minX, minY, minZ, maxX, maxY, maxZ, material))
	}
}
