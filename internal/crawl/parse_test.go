package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const listingFixture = `
<div class="sportName">
  <div class="event__match" id="g_1_abc111"></div>
  <div class="event__match" id="g_1_def222"></div>
  <div class="event__match" id="g_1_abc111"></div>
  <div class="event__match"></div>
  <div class="event__match" id="g_1_ghi333"></div>
</div>`

func TestParser_MatchIDs_OrderAndDedupe(t *testing.T) {
	t.Parallel()

	p := NewParser(DefaultSelectors())
	ids, err := p.MatchIDs(listingFixture)
	require.NoError(t, err)
	require.Equal(t, []string{"abc111", "def222", "ghi333"}, ids)
}

func TestParser_MatchIDs_EmptyListing(t *testing.T) {
	t.Parallel()

	p := NewParser(DefaultSelectors())
	ids, err := p.MatchIDs("<html><body></body></html>")
	require.NoError(t, err)
	require.Empty(t, ids)
}

const archiveFixture = `
<div class="archive">
  <div class="archive__season"><a href="/football/england/premier-league/2023-2024/results/">2023/2024</a></div>
  <div class="archive__season"><a href="/football/england/premier-league/2022-2023/results/">2022/2023</a></div>
  <div class="archive__season"><a href="">   </a></div>
</div>`

func TestParser_Seasons_ResolvesHrefs(t *testing.T) {
	t.Parallel()

	b, err := NewURLBuilder("https://example.com")
	require.NoError(t, err)

	p := NewParser(DefaultSelectors())
	seasons, err := p.Seasons(archiveFixture, b.Resolve)
	require.NoError(t, err)
	require.Equal(t, []Season{
		{Name: "2023/2024", URL: "https://example.com/football/england/premier-league/2023-2024/results/"},
		{Name: "2022/2023", URL: "https://example.com/football/england/premier-league/2022-2023/results/"},
	}, seasons)
}

const detailFixture = `
<div class="tournamentHeader">
  <span class="tournamentHeader__country"><a href="#">ENGLAND: Premier League - Round 10</a></span>
</div>
<div class="duelParticipant">
  <div class="duelParticipant__startTime">01.10.2023 16:30</div>
  <div class="duelParticipant__home">
    <img class="participant__image" src="/teams/arsenal.png"/>
    <div class="participant__participantName">Arsenal</div>
  </div>
  <div class="detailScore__wrapper"><span>2</span> <span>-</span> <span>1</span></div>
  <div class="detailScore__status">FINISHED</div>
  <div class="duelParticipant__away">
    <img class="participant__image" src="/teams/chelsea.png"/>
    <div class="participant__participantName">Chelsea</div>
  </div>
</div>
<div class="matchInfo">
  <div class="matchInfoRow">
    <div class="matchInfoRow__label">Referee</div>
    <div class="matchInfoRow__value">M. Oliver</div>
  </div>
  <div class="matchInfoRow">
    <div class="matchInfoRow__label">Venue</div>
    <div class="matchInfoRow__value">Emirates Stadium</div>
  </div>
</div>`

func TestParser_MatchDetail_ExtractsSummary(t *testing.T) {
	t.Parallel()

	p := NewParser(DefaultSelectors())
	rec, err := p.MatchDetail("abc111", detailFixture)
	require.NoError(t, err)

	require.Equal(t, "abc111", rec.ID)
	require.Equal(t, "ENGLAND: Premier League - Round 10", rec.Stage)
	require.Equal(t, "01.10.2023 16:30", rec.Date)
	require.Equal(t, "FINISHED", rec.Status)
	require.Equal(t, Team{Name: "Arsenal", Image: "/teams/arsenal.png"}, rec.Home)
	require.Equal(t, Team{Name: "Chelsea", Image: "/teams/chelsea.png"}, rec.Away)
	require.Equal(t, "2 - 1", rec.Score)
	require.Equal(t, []InfoPair{
		{Label: "Referee", Value: "M. Oliver"},
		{Label: "Venue", Value: "Emirates Stadium"},
	}, rec.Information)
}

func TestParser_MatchDetail_RejectsMissingParticipants(t *testing.T) {
	t.Parallel()

	p := NewParser(DefaultSelectors())
	_, err := p.MatchDetail("abc111", "<html><body><div>maintenance</div></body></html>")
	require.Error(t, err)
	require.Contains(t, err.Error(), "participants not found")
}

const statsFixture = `
<div class="stat__category">
  <div class="stat__row">
    <div class="stat__homeValue">55%</div>
    <div class="stat__categoryName">Ball Possession</div>
    <div class="stat__awayValue">45%</div>
  </div>
  <div class="stat__row">
    <div class="stat__homeValue">12</div>
    <div class="stat__categoryName">Total Shots</div>
    <div class="stat__awayValue">8</div>
  </div>
  <div class="stat__row"><div class="stat__categoryName"></div></div>
</div>`

func TestParser_Statistics_ExtractsRows(t *testing.T) {
	t.Parallel()

	p := NewParser(DefaultSelectors())
	rows, err := p.Statistics(statsFixture)
	require.NoError(t, err)
	require.Equal(t, []StatRow{
		{Name: "Ball Possession", Home: "55%", Away: "45%"},
		{Name: "Total Shots", Home: "12", Away: "8"},
	}, rows)
}
