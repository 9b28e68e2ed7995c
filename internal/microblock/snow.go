package microblock

// SnowResult снежные кубоиды: на поверхности вокселей и на земле (y=0)
type SnowResult struct {
	Surface []uint32
	Ground  []uint32
}

// MergeSnow строит снежную геометрию по колонкам. Для каждой колонки (x,z) сверху вниз
// ищется первая высота, где есть воксель или достигнут y=0; соседние колонки
// присоединяются ростом по X, затем по Z, пока над ними нет нависания.
// Материал не учитывается.
func MergeSnow(g *VoxelGrid, sc *Scratch) SnowResult {
	var res SnowResult
	withScratch(sc, func(sc *Scratch) {
		res = mergeSnow(g, sc)
	})
	return res
}

func mergeSnow(g *VoxelGrid, sc *Scratch) SnowResult {
	sc.resetSnowVisited()
	res := SnowResult{Surface: []uint32{}, Ground: []uint32{}}

	for dx := 0; dx < Size; dx++ {
		for dz := 0; dz < Size; dz++ {
			if sc.snowVisited[dx][dz] {
				continue
			}

			for dy := Size - 1; dy >= 0; dy-- {
				ground := dy == 0
				if !ground && !g.present[dx][dy][dz] {
					continue
				}

				cub := Cuboid{X1: dx, Y1: dy, Z1: dz, X2: dx + 1, Y2: dy + 1, Z2: dz + 1}
				for grew := true; grew; {
					grew = false
					grew = trySnowGrowX(&cub, g, sc) || grew
					grew = trySnowGrowZ(&cub, g, sc) || grew
				}

				if ground {
					res.Ground = append(res.Ground, cub.Encode())
				} else {
					res.Surface = append(res.Surface, cub.Encode())
				}
				break
			}
		}
	}
	return res
}

// snowFloorFree пол под снегом есть, колонка не занята и сверху нет вокселя
func snowFloorFree(cub *Cuboid, g *VoxelGrid, sc *Scratch, x, z int) bool {
	if !g.present[x][cub.Y1][z] || sc.snowVisited[x][z] {
		return false
	}
	return !(cub.Y2 < Size-1 && g.present[x][cub.Y2][z])
}

func trySnowGrowX(cub *Cuboid, g *VoxelGrid, sc *Scratch) bool {
	if cub.X2 >= Size {
		return false
	}
	for z := cub.Z1; z < cub.Z2; z++ {
		if !snowFloorFree(cub, g, sc, cub.X2, z) {
			return false
		}
	}
	for z := cub.Z1; z < cub.Z2; z++ {
		sc.snowVisited[cub.X2][z] = true
	}
	cub.X2++
	return true
}

func trySnowGrowZ(cub *Cuboid, g *VoxelGrid, sc *Scratch) bool {
	if cub.Z2 >= Size {
		return false
	}
	for x := cub.X1; x < cub.X2; x++ {
		if !snowFloorFree(cub, g, sc, x, cub.Z2) {
			return false
		}
	}
	for x := cub.X1; x < cub.X2; x++ {
		sc.snowVisited[x][cub.Z2] = true
	}
	cub.Z2++
	return true
}
