package cdp

// CSPPolicy is the policy CSPPageHTML declares.
const CSPPolicy = "default-src 'self'"

// CSPPageHTML declares CSPPolicy in a meta tag and carries an inline script
// that the policy blocks, so loading it produces a CSP console report.
const CSPPageHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta http-equiv="Content-Security-Policy" content="` + CSPPolicy + `">
    <title>cspcheck - policy page</title>
</head>
<body>
    <h1>Policy in place</h1>
    <p>The inline script below must not run.</p>
    <script>
        document.body.setAttribute('data-inline', 'ran');
        console.log('[cspcheck] inline script executed');
    </script>
</body>
</html>`

// PlainPageHTML has no policy and only logs an unrelated console message.
const PlainPageHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>cspcheck - plain page</title>
</head>
<body>
    <h1>No policy</h1>
    <script>
        console.log('[cspcheck] plain page loaded');
    </script>
</body>
</html>`
