//go:build !microblockdebug

package microblock

const debugChecks = false

func assertEncodable(minX, minY, minZ, maxX, maxY, maxZ, material int) {}
