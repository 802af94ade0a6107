package local

// thresholds holds, for every descriptor bin, the two ternarization
// thresholds: values above [1] map to 2, above [0] to 1, otherwise 0.
var thresholds = [128][2]int{
	{-4, 0}, {-7, 0}, {-1, 8}, {-1, 0}, {-1, 0}, {-4, 0}, {-1, 13}, {-1, 3},
	{3, 37}, {-1, 11}, {-25, 0}, {-1, 8}, {-1, 0}, {-1, 0}, {-7, 6}, {-2, 12},
	{-1, 3}, {-10, 0}, {-1, 22}, {-1, 1}, {-1, 0}, {-7, 0}, {0, 22}, {-1, 4},
	{-2, 12}, {-1, 8}, {-9, 0}, {-1, 3}, {-1, 0}, {-1, 0}, {-5, 5}, {-1, 10},
	{-3, 19}, {-4, 5}, {-14, 0}, {-1, 3}, {-4, 0}, {-1, 1}, {-6, 5}, {-6, 7},
	{-3, 1}, {-15, -2}, {13, 39}, {-1, 0}, {-1, 1}, {-11, -2}, {13, 31}, {1, 7},
	{21, 59}, {2, 16}, {-41, -14}, {2, 12}, {-2, 0}, {-1, 0}, {-7, 5}, {4, 17},
	{-1, 3}, {-5, 4}, {-1, 12}, {-2, 0}, {-1, 4}, {-4, 0}, {0, 19}, {-1, 4},
	{-1, 3}, {-6, 3}, {-1, 13}, {-2, 0}, {-1, 3}, {-4, 0}, {1, 19}, {-1, 4},
	{21, 59}, {1, 14}, {-40, -14}, {1, 10}, {-2, 0}, {-1, 0}, {-8, 3}, {3, 16},
	{-4, 1}, {-17, -3}, {13, 40}, {-1, 0}, {-1, 1}, {-13, -3}, {13, 30}, {1, 7},
	{-4, 19}, {-5, 4}, {-13, 0}, {-1, 3}, {-5, 0}, {-1, 1}, {-6, 5}, {-8, 7},
	{-2, 11}, {-1, 6}, {-9, 0}, {-1, 3}, {-1, 0}, {-1, 0}, {-5, 4}, {-2, 9},
	{-2, 2}, {-12, 0}, {-1, 24}, {-1, 0}, {-1, 0}, {-9, 0}, {1, 23}, {-1, 5},
	{3, 38}, {-1, 9}, {-23, 0}, {-1, 6}, {-1, 0}, {-2, 0}, {-8, 5}, {-4, 11},
	{-5, 0}, {-9, 0}, {-1, 8}, {-1, 0}, {-1, 0}, {-4, 0}, {-1, 13}, {-1, 3},
}

// histogramGroups lists the four 8-bin spatial histograms of each group;
// the first two use the A transforms, the last two the B transforms.
var histogramGroups = [4][4]int{
	{0, 15, 3, 12},
	{7, 8, 1, 14},
	{2, 13, 4, 11},
	{5, 10, 6, 9},
}

// priorityList is the transmission order of (group, element) pairs; a
// descriptor with g element groups carries the first g entries.
var priorityList = [MaxGroups][2]int{
	{3, 0}, {1, 0}, {2, 0}, {0, 0}, {3, 6},
	{3, 1}, {1, 1}, {2, 1}, {0, 1}, {3, 2},
	{1, 2}, {2, 2}, {0, 2}, {1, 6}, {2, 6}, {0, 6},
	{3, 7}, {1, 7}, {2, 7}, {0, 7},
	{3, 3}, {1, 3}, {2, 3}, {0, 3}, {3, 4}, {1, 4}, {2, 4}, {0, 4}, {3, 5}, {1, 5}, {2, 5}, {0, 5},
}

// transformA and transformB compute element e of an 8-bin histogram d.
// Conversions truncate toward zero before the integer division.
func transformA(d []float32, e int) int {
	switch e {
	case 0:
		return int(d[2]-d[6]) / 2
	case 1:
		return int(d[3]-d[7]) / 2
	case 2:
		return int(d[0]-d[1]) / 2
	case 3:
		return int(d[2]-d[3]) / 2
	case 4:
		return int(d[4]-d[5]) / 2
	case 5:
		return int(d[6]-d[7]) / 2
	case 6:
		return int(d[0]+d[4]-d[2]-d[6]) / 4
	default:
		return int(d[0]+d[2]+d[4]+d[6]-d[1]-d[3]-d[5]-d[7]) / 8
	}
}

func transformB(d []float32, e int) int {
	switch e {
	case 0:
		return int(d[0]-d[4]) / 2
	case 1:
		return int(d[1]-d[5]) / 2
	case 2:
		return int(d[7]-d[0]) / 2
	case 3:
		return int(d[1]-d[2]) / 2
	case 4:
		return int(d[3]-d[4]) / 2
	case 5:
		return int(d[5]-d[6]) / 2
	case 6:
		return int(d[1]+d[5]-d[3]-d[7]) / 4
	default:
		return int(d[0]+d[1]+d[2]+d[3]-d[4]-d[5]-d[6]-d[7]) / 8
	}
}
