package linenotify

import (
	"golang.org/x/oauth2"
)

// NotifyScope is the only scope LINE Notify grants.
const NotifyScope = "notify"

// OAuth2Config describes the client as an oauth2.Config bound to the
// configured OAuth host. Token exchange still goes through ExchangeToken,
// which returns the service's own response shape.
func (clientInstance *Client) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientInstance.clientID,
		ClientSecret: clientInstance.clientSecret,
		RedirectURL:  clientInstance.redirectURI,
		Scopes:       []string{NotifyScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   clientInstance.OAuthAPIBase + pathAuthorize,
			TokenURL:  clientInstance.OAuthAPIBase + pathToken,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthorizationURL returns the consent page URL the user must visit. With
// formPost the service delivers the code as a POST to the redirect URI.
func (clientInstance *Client) AuthorizationURL(state string, formPost bool) string {
	var authOptions []oauth2.AuthCodeOption
	if formPost {
		authOptions = append(authOptions, oauth2.SetAuthURLParam("response_mode", "form_post"))
	}
	return clientInstance.OAuth2Config().AuthCodeURL(state, authOptions...)
}
