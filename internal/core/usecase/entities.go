package usecase

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

var (
	koreanDatePattern  = regexp.MustCompile(`(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일`)
	numericDatePattern = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)
	groupedWonPattern  = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+)\s*원`)
	plainWonPattern    = regexp.MustCompile(`(\d+)\s*원`)
	phonePattern       = regexp.MustCompile(`\b(0\d{1,2})-(\d{3,4})-(\d{4})\b`)
	accountPattern     = regexp.MustCompile(`\b(\d{3,6})-(\d{2,6})-(\d{2,7})\b`)
)

const minAmountWon = 100

// ExtractEntities pulls dates, amounts, phone numbers and account numbers out of document text.
// Results keep first-seen order and contain no duplicates.
func ExtractEntities(text string) domain.Entities {
	entities := domain.Entities{
		Dates:        []string{},
		Amounts:      []int64{},
		PhoneNumbers: []string{},
		Accounts:     []string{},
	}

	seenDates := map[string]struct{}{}
	for _, pattern := range []*regexp.Regexp{koreanDatePattern, numericDatePattern} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			date, ok := normalizeDate(m[1], m[2], m[3])
			if !ok {
				continue
			}
			if _, dup := seenDates[date]; dup {
				continue
			}
			seenDates[date] = struct{}{}
			entities.Dates = append(entities.Dates, date)
		}
	}

	seenAmounts := map[int64]struct{}{}
	for _, pattern := range []*regexp.Regexp{groupedWonPattern, plainWonPattern} {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			amount, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
			if err != nil || amount < minAmountWon {
				continue
			}
			if _, dup := seenAmounts[amount]; dup {
				continue
			}
			seenAmounts[amount] = struct{}{}
			entities.Amounts = append(entities.Amounts, amount)
		}
	}

	phones := map[string]struct{}{}
	for _, m := range phonePattern.FindAllString(text, -1) {
		if _, dup := phones[m]; dup {
			continue
		}
		phones[m] = struct{}{}
		entities.PhoneNumbers = append(entities.PhoneNumbers, m)
	}

	seenAccounts := map[string]struct{}{}
	for _, m := range accountPattern.FindAllString(text, -1) {
		if _, isPhone := phones[m]; isPhone {
			continue
		}
		if countDigits(m) < 10 {
			continue
		}
		if _, dup := seenAccounts[m]; dup {
			continue
		}
		seenAccounts[m] = struct{}{}
		entities.Accounts = append(entities.Accounts, m)
	}

	return entities
}

func normalizeDate(year, month, day string) (string, bool) {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return "", false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
