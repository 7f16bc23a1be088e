package email

const baseStyle = `
<style>
  body { font-family: Arial, sans-serif; color: #333; margin: 0; }
  .container { max-width: 560px; margin: 0 auto; padding: 24px; }
  .header { background: #0b7a3e; color: #fff; padding: 16px 24px; border-radius: 6px 6px 0 0; }
  .content { border: 1px solid #e3e3e3; border-top: none; padding: 24px; border-radius: 0 0 6px 6px; }
  .row { margin: 6px 0; }
  .label { color: #777; }
  .footer { color: #999; font-size: 12px; margin-top: 16px; }
</style>`

const welcomeTemplate = baseStyle + `
<div class="container">
  <div class="header"><h2>Welcome to ChargeNet</h2></div>
  <div class="content">
    <p>Hi {{.UserName}},</p>
    <p>Your account <strong>{{.Email}}</strong> is ready. Top up your wallet
    and start charging at any ChargeNet station.</p>
    <p><a href="{{.BaseURL}}">Open the app</a></p>
    <div class="footer">You are receiving this because an account was created with this address.</div>
  </div>
</div>`

const topupReceiptTemplate = baseStyle + `
<div class="container">
  <div class="header"><h2>Top-up Receipt</h2></div>
  <div class="content">
    <p>Hi {{.UserName}},</p>
    <p>Your wallet top-up has been completed.</p>
    <div class="row"><span class="label">Amount:</span> {{.Currency}} {{.Amount}}</div>
    <div class="row"><span class="label">Points earned:</span> {{.Points}}</div>
    <div class="row"><span class="label">New balance:</span> {{.Currency}} {{.NewBalance}}</div>
    {{if .Reference}}<div class="row"><span class="label">Reference:</span> {{.Reference}}</div>{{end}}
    <div class="footer">Keep this receipt for your records.</div>
  </div>
</div>`

const chargingReceiptTemplate = baseStyle + `
<div class="container">
  <div class="header"><h2>Charging Receipt</h2></div>
  <div class="content">
    <p>Hi {{.UserName}},</p>
    <p>Your charging session has finished.</p>
    <div class="row"><span class="label">Station:</span> {{.ChargePoint}}</div>
    <div class="row"><span class="label">Energy:</span> {{.EnergyKWh}} kWh</div>
    <div class="row"><span class="label">Cost:</span> {{.Currency}} {{.Cost}}</div>
    <div class="footer">Thank you for charging with ChargeNet.</div>
  </div>
</div>`

const lowBalanceTemplate = baseStyle + `
<div class="container">
  <div class="header"><h2>Low Wallet Balance</h2></div>
  <div class="content">
    <p>Hi {{.UserName}},</p>
    <p>Your wallet balance is down to <strong>{{.Currency}} {{.Balance}}</strong>.
    Top up now so your next session is not interrupted.</p>
    <p><a href="{{.BaseURL}}/wallet/topup">Top up</a></p>
  </div>
</div>`

const ticketUpdateTemplate = baseStyle + `
<div class="container">
  <div class="header"><h2>Ticket {{.TicketNumber}}</h2></div>
  <div class="content">
    <p>Hi {{.UserName}},</p>
    <p>Your ticket <strong>{{.TicketSubject}}</strong> is now
    <strong>{{.Status}}</strong>.</p>
    <p><a href="{{.BaseURL}}/support/tickets">View ticket</a></p>
  </div>
</div>`
