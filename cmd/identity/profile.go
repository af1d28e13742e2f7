package identity

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Gender is the self-declared gender on a profile.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Valid reports whether g is a known gender.
func (g Gender) Valid() bool { return g == GenderMale || g == GenderFemale }

// Horoscope is the western sun sign derived from a birthday.
type Horoscope string

const (
	Aries       Horoscope = "Aries"
	Taurus      Horoscope = "Taurus"
	Gemini      Horoscope = "Gemini"
	Cancer      Horoscope = "Cancer"
	Leo         Horoscope = "Leo"
	Virgo       Horoscope = "Virgo"
	Libra       Horoscope = "Libra"
	Scorpio     Horoscope = "Scorpio"
	Sagittarius Horoscope = "Sagittarius"
	Capricorn   Horoscope = "Capricorn"
	Aquarius    Horoscope = "Aquarius"
	Pisces      Horoscope = "Pisces"
)

// Zodiac is the Chinese zodiac animal derived from a birth year.
type Zodiac string

const (
	Rat     Zodiac = "Rat"
	Ox      Zodiac = "Ox"
	Tiger   Zodiac = "Tiger"
	Rabbit  Zodiac = "Rabbit"
	Dragon  Zodiac = "Dragon"
	Snake   Zodiac = "Snake"
	Horse   Zodiac = "Horse"
	Goat    Zodiac = "Goat"
	Monkey  Zodiac = "Monkey"
	Rooster Zodiac = "Rooster"
	Dog     Zodiac = "Dog"
	Pig     Zodiac = "Pig"
)

var zodiacCycle = [12]Zodiac{Rat, Ox, Tiger, Rabbit, Dragon, Snake, Horse, Goat, Monkey, Rooster, Dog, Pig}

// signStarts holds, per month, the day the next sign begins and the signs on
// either side of it.
var signStarts = [12]struct {
	day           int
	before, after Horoscope
}{
	{20, Capricorn, Aquarius},
	{19, Aquarius, Pisces},
	{21, Pisces, Aries},
	{20, Aries, Taurus},
	{21, Taurus, Gemini},
	{21, Gemini, Cancer},
	{23, Cancer, Leo},
	{23, Leo, Virgo},
	{23, Virgo, Libra},
	{23, Libra, Scorpio},
	{22, Scorpio, Sagittarius},
	{22, Sagittarius, Capricorn},
}

// HoroscopeFor returns the sun sign for the UTC calendar day of t.
func HoroscopeFor(t time.Time) Horoscope {
	t = t.UTC()
	s := signStarts[t.Month()-1]
	if t.Day() >= s.day {
		return s.after
	}
	return s.before
}

// ZodiacFor indexes the twelve-year cycle by year mod 12, Rat first.
func ZodiacFor(year int) Zodiac {
	return zodiacCycle[((year%12)+12)%12]
}

// Profile is the optional public profile of an account. Horoscope and Zodiac
// are derived from Birthday and never set by callers.
type Profile struct {
	DisplayName string
	Gender      Gender
	Birthday    time.Time
	Horoscope   Horoscope
	Zodiac      Zodiac
	Height      float64
	Weight      float64
	ImageURL    string
	UpdatedAt   time.Time
}

// ProfileInput is a create or update request. An empty ImageURL on update
// keeps the stored one.
type ProfileInput struct {
	DisplayName string
	Gender      Gender
	Birthday    time.Time
	Height      float64
	Weight      float64
	ImageURL    string
	Now         time.Time
}

// ProfileMode selects UpsertProfile semantics.
type ProfileMode int

const (
	// ProfileCreate fails with ConflictError{Field: "profile"} if one exists.
	ProfileCreate ProfileMode = iota
	// ProfileUpdate fails with NotFoundError{Resource: "profile"} if none exists.
	ProfileUpdate
)

const maxDisplayNameRunes = 64

func prepareProfile(op string, in ProfileInput) (Profile, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" || utf8.RuneCountInString(name) > maxDisplayNameRunes {
		return Profile{}, invalid(op, "display name must be 1-64 characters")
	}
	if !in.Gender.Valid() {
		return Profile{}, invalid(op, "gender must be Male or Female")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	if in.Birthday.IsZero() || in.Birthday.After(now) {
		return Profile{}, invalid(op, "birthday must be a past date")
	}
	if in.Height < 0 || in.Weight < 0 {
		return Profile{}, invalid(op, "height and weight must not be negative")
	}

	img := strings.TrimSpace(in.ImageURL)
	if img != "" {
		u, err := url.Parse(img)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return Profile{}, invalid(op, "image_url must be an http(s) URL")
		}
	}

	bday := in.Birthday.UTC()
	return Profile{
		DisplayName: name,
		Gender:      in.Gender,
		Birthday:    bday,
		Horoscope:   HoroscopeFor(bday),
		Zodiac:      ZodiacFor(bday.Year()),
		Height:      in.Height,
		Weight:      in.Weight,
		ImageURL:    img,
		UpdatedAt:   now,
	}, nil
}

// merge applies an update onto the stored profile.
func (p Profile) merge(prev *Profile) Profile {
	if p.ImageURL == "" && prev != nil {
		p.ImageURL = prev.ImageURL
	}
	return p
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
