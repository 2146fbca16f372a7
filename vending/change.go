package vending

// makeChange reduces amount to zero taking the largest available coin at
// every step, decrementing available as it goes. It reports false when no
// denomination can make progress before amount reaches zero; available is
// left partially decremented in that case, so callers pass a copy.
func makeChange(amount int, available Coins) (Coins, bool) {
	change := NewCoins()
	for amount > 0 {
		progressed := false
		for _, d := range denominations {
			if amount >= int(d) && available[d] > 0 {
				amount -= int(d)
				available[d]--
				change[d]++
				progressed = true
				break
			}
		}
		if !progressed {
			return nil, false
		}
	}
	return change, amount == 0
}
