package linkedin

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/scraper"
)

const (
	baseURL        = "https://www.linkedin.com"
	maxScanPerPage = 10
	maxPerKeyword  = 5
)

// ContextFactory hands out isolated browser contexts.
type ContextFactory interface {
	NewContext() (playwright.BrowserContext, error)
}

type Options struct {
	Keywords []string
	Location string
	// MaxAge narrows the search to postings from the last MaxAge.
	MaxAge  time.Duration
	Cookies []browser.Cookie
}

type LinkedInScraper struct {
	browsers ContextFactory
	opts     Options
}

func NewLinkedInScraper(browsers ContextFactory, opts Options) *LinkedInScraper {
	return &LinkedInScraper{browsers: browsers, opts: opts}
}

func (s *LinkedInScraper) Name() string {
	return "LinkedIn"
}

func (s *LinkedInScraper) Platform() models.Platform {
	return models.PlatformLinkedIn
}

// Scrape walks every configured keyword in one authenticated context. Jobs
// gathered before an error are returned alongside it.
func (s *LinkedInScraper) Scrape(ctx context.Context) ([]scraper.Job, error) {
	bctx, err := s.browsers.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to open browser context: %w", err)
	}
	defer func() {
		if err := bctx.Close(); err != nil {
			log.Printf("⚠️ Failed to close LinkedIn context: %v", err)
		}
	}()

	if len(s.opts.Cookies) > 0 {
		if err := bctx.AddCookies(browser.ToOptional(s.opts.Cookies, baseURL)); err != nil {
			return nil, fmt.Errorf("failed to add cookies: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	log.Println("💼 Searching LinkedIn Jobs (Authenticated)...")
	if err := s.warmUp(ctx, page); err != nil {
		return nil, err
	}

	var jobs []scraper.Job
	for _, keyword := range s.opts.Keywords {
		if err := ctx.Err(); err != nil {
			return jobs, err
		}
		found, err := s.searchKeyword(ctx, bctx, page, keyword)
		jobs = append(jobs, found...)
		if err != nil {
			return jobs, err
		}
	}
	return jobs, nil
}

func (s *LinkedInScraper) warmUp(ctx context.Context, page playwright.Page) error {
	log.Println("🏠 Navigating to LinkedIn Feed for warm-up...")
	if _, err := page.Goto(baseURL+"/feed/", playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return fmt.Errorf("failed to load linkedin feed: %w", err)
	}

	if _, err := page.WaitForSelector("#global-nav", playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("login verification failed - global nav not found")
	}
	log.Println("✅ Login confirmed.")

	if err := browser.RandomDelay(ctx, 2000, 4000); err != nil {
		return err
	}
	return browser.MouseJiggle(ctx, page)
}

// searchKeyword only returns an error when ctx is done; page-level problems
// are logged and the keyword is skipped.
func (s *LinkedInScraper) searchKeyword(ctx context.Context, bctx playwright.BrowserContext, page playwright.Page, keyword string) ([]scraper.Job, error) {
	log.Printf("🔑 Processing Keyword: %q", keyword)
	target := searchURL(keyword, s.opts.Location, s.opts.MaxAge)

	if _, err := page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		log.Printf("    ⚠️ Failed to load job search page: %v", err)
		return nil, nil
	}

	if _, err := page.WaitForSelector("li.scaffold-layout__list-item, .job-card-container", playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(15000),
	}); err != nil {
		log.Println("    ⚠️ Job list not found or empty.")
		return nil, nil
	}
	if err := browser.RandomDelay(ctx, 2000, 3000); err != nil {
		return nil, err
	}
	if err := browser.HumanScroll(ctx, page); err != nil {
		return nil, err
	}

	items, err := page.Locator("li.scaffold-layout__list-item, li.jobs-search-results__list-item").All()
	if err != nil {
		log.Printf("    ⚠️ Error finding job items: %v", err)
		return nil, nil
	}
	if len(items) > maxScanPerPage {
		items = items[:maxScanPerPage]
	}

	var links []string
	for _, item := range items {
		href, err := item.Locator("a.job-card-container__link").First().GetAttribute("href")
		if err == nil && href != "" {
			links = append(links, canonicalJobURL(href))
		}
	}
	log.Printf("    🔗 Extracted %d links. Processing...", len(links))

	var jobs []scraper.Job
	for _, link := range links {
		if len(jobs) >= maxPerKeyword {
			break
		}
		if err := ctx.Err(); err != nil {
			return jobs, err
		}

		jobPage, err := bctx.NewPage()
		if err != nil {
			log.Printf("      ⚠️ Failed to create new page: %v", err)
			continue
		}
		job, err := s.processJobDetail(ctx, jobPage, link)
		jobPage.Close()
		if err != nil {
			log.Printf("      ⚠️ Job Processing Error: %v", err)
			continue
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (s *LinkedInScraper) processJobDetail(ctx context.Context, page playwright.Page, link string) (*scraper.Job, error) {
	if _, err := page.Goto(link, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(30000),
	}); err != nil {
		return nil, err
	}

	if _, err := page.WaitForSelector(".job-details-jobs-unified-top-card__primary-description-container, .job-details-jobs-unified-top-card__job-title", playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(5000),
	}); err != nil {
		return nil, fmt.Errorf("job details not found")
	}

	title, _ := page.Locator(".job-details-jobs-unified-top-card__job-title, h1").First().InnerText()
	company, _ := page.Locator(".job-details-jobs-unified-top-card__company-name, .job-details-jobs-unified-top-card__subtitle").First().InnerText()

	location, postedDate := "", ""
	topCard := page.Locator(".job-details-jobs-unified-top-card__primary-description-container").First()
	if count, _ := topCard.Count(); count > 0 {
		text, _ := topCard.InnerText()
		location, postedDate = parseTopCard(text)
	} else if txt, err := page.Locator(".job-details-jobs-unified-top-card__bullet, .job-details-jobs-unified-top-card__workplace-type").First().InnerText(); err == nil {
		location = strings.TrimSpace(txt)
	}

	showMore := page.Locator(`button[data-testid="expandable-text-button"]`)
	if visible, _ := showMore.IsVisible(); visible {
		_ = showMore.Click(playwright.LocatorClickOptions{Force: playwright.Bool(true)})
		if err := browser.Sleep(ctx, 500*time.Millisecond); err != nil {
			return nil, err
		}
	}

	description := ""
	if el := page.Locator(`[data-testid="expandable-text-box"]`).First(); countOf(el) > 0 {
		description, _ = el.InnerText()
	} else if el := page.Locator("#job-details, .jobs-description__content").First(); countOf(el) > 0 {
		description, _ = el.InnerText()
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("empty title at %s", link)
	}
	log.Printf("      ✅ %s @ %s (%s)", title, strings.TrimSpace(company), postedDate)

	return &scraper.Job{
		Title:       title,
		Company:     strings.TrimSpace(company),
		URL:         link,
		Location:    location,
		Description: description,
		Source:      "LinkedIn",
		PostedDate:  postedDate,
	}, nil
}

func countOf(l playwright.Locator) int {
	n, _ := l.Count()
	return n
}

// searchURL builds the jobs search URL. f_TPR takes the posting age in
// seconds.
func searchURL(keyword, location string, maxAge time.Duration) string {
	q := url.Values{}
	q.Set("keywords", keyword)
	if location != "" {
		q.Set("location", location)
	}
	if maxAge > 0 {
		q.Set("f_TPR", fmt.Sprintf("r%d", int(maxAge.Seconds())))
	}
	q.Set("origin", "JOB_SEARCH_PAGE_JOB_FILTER")
	return baseURL + "/jobs/search/?" + q.Encode()
}

// canonicalJobURL makes links absolute and drops tracking parameters so the
// same posting always yields the same URL.
func canonicalJobURL(href string) string {
	if !strings.HasPrefix(href, "http") {
		href = baseURL + href
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return href
}

// parseTopCard splits "Bengaluru, Karnataka · 3 days ago · 40 applicants".
func parseTopCard(text string) (location, posted string) {
	parts := strings.Split(text, "·")
	location = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		lower := strings.ToLower(p)
		if strings.HasSuffix(lower, " ago") {
			// "Reposted 2 weeks ago"
			if i := strings.IndexAny(lower, "0123456789"); i > 0 {
				p = p[i:]
			}
			return location, p
		}
	}
	return location, ""
}
