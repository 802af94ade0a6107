package distrat

// Chi-square critical values for 1..30 degrees of freedom, per percentile.
var (
	chiSquare99 = [30]float64{6.5858, 9.2205, 11.3691, 13.3057, 15.1171, 16.8433, 18.5067, 20.1213, 21.6966, 23.2394, 24.7545, 26.2460, 27.7167, 29.1692, 30.6054, 32.0269, 33.4352, 34.8314, 36.2165, 37.5914, 38.9570, 40.3138, 41.6625, 43.0035, 44.3375, 45.6648, 46.9857, 48.3007, 49.6101, 50.9141}
	chiSquare98 = [30]float64{5.3220, 7.7912, 9.8220, 11.6605, 13.3854, 15.0331, 16.6242, 18.1713, 19.6830, 21.1654, 22.6231, 24.0595, 25.4773, 26.8788, 28.2657, 29.6396, 31.0015, 32.3527, 33.6941, 35.0263, 36.3502, 37.6662, 38.9751, 40.2771, 41.5728, 42.8626, 44.1467, 45.4256, 46.6994, 47.9685}
	chiSquare97 = [30]float64{4.6107, 6.9658, 8.9172, 10.6904, 12.3583, 13.9547, 15.4987, 17.0019, 18.4724, 19.9158, 21.3363, 22.7373, 24.1210, 25.4897, 26.8450, 28.1882, 29.5205, 30.8428, 32.1560, 33.4609, 34.7581, 36.0481, 37.3314, 38.6085, 39.8798, 41.1455, 42.4062, 43.6619, 44.9131, 46.1598}
	chiSquare96 = [30]float64{4.1195, 6.3849, 8.2744, 9.9973, 11.6213, 13.1784, 14.6863, 16.1560, 17.5951, 19.0089, 20.4012, 21.7752, 23.1331, 24.4769, 25.8082, 27.1282, 28.4379, 29.7384, 31.0304, 32.3146, 33.5916, 34.8618, 36.1259, 37.3841, 38.6369, 39.8846, 41.1274, 42.3657, 43.5997, 44.8296}
	chiSquare95 = [30]float64{3.7468, 5.9369, 7.7750, 9.4560, 11.0439, 12.5686, 14.0468, 15.4891, 16.9024, 18.2918, 19.6610, 21.0129, 22.3497, 23.6732, 24.9848, 26.2858, 27.5772, 28.8598, 30.1344, 31.4017, 32.6622, 33.9163, 35.1646, 36.4075, 37.6452, 38.8780, 40.1064, 41.3304, 42.5505, 43.7666}
	chiSquare90 = [30]float64{2.6390, 4.5590, 6.2139, 7.7472, 9.2078, 10.6188, 11.9933, 13.3395, 14.6630, 15.9677, 17.2566, 18.5318, 19.7952, 21.0481, 22.2917, 23.5270, 24.7547, 25.9755, 27.1901, 28.3989, 29.6024, 30.8009, 31.9948, 33.1845, 34.3701, 35.5519, 36.7302, 37.9051, 39.0769, 40.2457}
	chiSquare80 = [30]float64{1.6203, 3.1985, 4.6222, 5.9702, 7.2718, 8.5414, 9.7874, 11.0149, 12.2276, 13.4279, 14.6179, 15.7989, 16.9721, 18.1385, 19.2987, 20.4534, 21.6032, 22.7484, 23.8896, 25.0269, 26.1607, 27.2913, 28.4188, 29.5435, 30.6656, 31.7852, 32.9024, 34.0174, 35.1304, 36.2413}
	chiSquare70 = [30]float64{1.0768, 2.4070, 3.6612, 4.8734, 6.0586, 7.2249, 8.3770, 9.5179, 10.6498, 11.7742, 12.8922, 14.0047, 15.1123, 16.2158, 17.3155, 18.4117, 19.5049, 20.5954, 21.6832, 22.7687, 23.8520, 24.9333, 26.0127, 27.0904, 28.1664, 29.2409, 30.3139, 31.3856, 32.4559, 33.5250}
	chiSquare60 = [30]float64{0.7222, 1.8443, 2.9541, 4.0501, 5.1357, 6.2134, 7.2851, 8.3518, 9.4144, 10.4736, 11.5299, 12.5837, 13.6352, 14.6848, 15.7326, 16.7788, 17.8235, 18.8670, 19.9092, 20.9503, 21.9904, 23.0295, 24.0677, 25.1051, 26.1417, 27.1776, 28.2128, 29.2473, 30.2812, 31.3145}
	chiSquare50 = [30]float64{0.4705, 1.4047, 2.3815, 3.3697, 4.3625, 5.3577, 6.3543, 7.3517, 8.3497, 9.3480, 10.3467, 11.3456, 12.3447, 13.3439, 14.3432, 15.3425, 16.3420, 17.3415, 18.3411, 19.3407, 20.3404, 21.3400, 22.3398, 23.3395, 24.3392, 25.3390, 26.3388, 27.3386, 28.3384, 29.3383}
	chiSquare40 = [30]float64{0.2853, 1.0411, 1.8881, 2.7701, 3.6711, 4.5844, 5.5064, 6.4348, 7.3684, 8.3061, 9.2473, 10.1915, 11.1382, 12.0871, 13.0380, 13.9907, 14.9449, 15.9006, 16.8576, 17.8157, 18.7750, 19.7353, 20.6965, 21.6586, 22.6216, 23.5853, 24.5497, 25.5148, 26.4806, 27.4470}
)

// chiSquareTable returns the critical values of a percentile; unknown
// percentiles fall back to 99.
func chiSquareTable(percentile int) *[30]float64 {
	switch percentile {
	case 98:
		return &chiSquare98
	case 97:
		return &chiSquare97
	case 96:
		return &chiSquare96
	case 95:
		return &chiSquare95
	case 90:
		return &chiSquare90
	case 80:
		return &chiSquare80
	case 70:
		return &chiSquare70
	case 60:
		return &chiSquare60
	case 50:
		return &chiSquare50
	case 40:
		return &chiSquare40
	}
	return &chiSquare99
}
